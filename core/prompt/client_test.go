package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ReadingFM/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(b)
}

func newTestClient(url string) *Client {
	return NewClient(Config{APIBaseURL: url, APIKey: "sk-test", Model: "gpt-4o-mini", Temperature: 0.8},
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		WithMaxRetries(2),
	)
}

func TestSynthesize_Success(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, completionBody(`{"prompt":"soft ambient piano","genre":"ambient","mood":"calm","tempo":78,"description":"잔잔한 시작"}`))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Synthesize(context.Background(), Request{
		Book: model.BookMetadata{Title: "노인과 바다"},
	})
	require.NoError(t, err)
	assert.Equal(t, "soft ambient piano", res.Prompt)
	assert.Equal(t, 78, res.TempoBPM())
	assert.Equal(t, "json_object", got.ResponseFormat["type"])
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "beginning of a reading journey")
}

func TestSynthesize_MalformedOutputFailsClosed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, completionBody(`{"prompt":"piano","mood":"calm","tempo":80,"description":"설명"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), Request{
		Book: model.BookMetadata{Title: "데미안"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "genre")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSynthesize_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, completionBody(`{"prompt":"p","genre":"g","mood":"m","tempo":90,"description":"d"}`))
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Synthesize(context.Background(), Request{
		Book: model.BookMetadata{Title: "데미안"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p", res.Prompt)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSynthesize_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Synthesize(context.Background(), Request{
		Book: model.BookMetadata{Title: "데미안"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSynthesize_RequiresTitleAndKey(t *testing.T) {
	c := NewClient(Config{APIBaseURL: "http://unused", APIKey: "k"})
	_, err := c.Synthesize(context.Background(), Request{})
	assert.Error(t, err)

	c = NewClient(Config{APIBaseURL: "http://unused"})
	_, err = c.Synthesize(context.Background(), Request{Book: model.BookMetadata{Title: "t"}})
	assert.Error(t, err)
}

func TestDecodeResult(t *testing.T) {
	res, err := DecodeResult("```json\n{\"prompt\":\"p\",\"genre\":\"g\",\"mood\":\"m\",\"tempo\":72.6,\"description\":\"d\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, 73, res.TempoBPM())

	_, err = DecodeResult(`{"prompt":"p","genre":"g","mood":"m","tempo":"fast","description":"d"}`)
	assert.Error(t, err)

	_, err = DecodeResult(`{"prompt":"p","genre":"g","mood":"m","tempo":0,"description":"d"}`)
	assert.Error(t, err)

	_, err = DecodeResult(`not json`)
	assert.Error(t, err)
}

func TestDecodeResult_TempoRange(t *testing.T) {
	tests := []struct {
		tempo   string
		wantErr bool
	}{
		{"39.9", true},
		{"40", false},
		{"120", false},
		{"200", false},
		{"200.5", true},
		{"260", true},
	}
	for _, tt := range tests {
		t.Run(tt.tempo, func(t *testing.T) {
			_, err := DecodeResult(`{"prompt":"p","genre":"g","mood":"m","tempo":` + tt.tempo + `,"description":"d"}`)
			if tt.wantErr {
				assert.ErrorContains(t, err, "tempo")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildUserPrompt_IncrementalUsesLastTwoMoments(t *testing.T) {
	prompt := BuildUserPrompt(Request{
		Book: model.BookMetadata{Title: "노인과 바다"},
		PriorContext: []Moment{
			{Quote: "first quote"},
			{Quote: "second quote"},
			{Quote: "third quote", Genre: "jazz", Mood: "warm", Tempo: 100},
		},
		Current: &Moment{Quote: "current quote", Memo: "memo", Emotions: []string{"감동"}},
	})

	assert.NotContains(t, prompt, "first quote")
	assert.Contains(t, prompt, "second quote")
	assert.Contains(t, prompt, "third quote")
	assert.Contains(t, prompt, "current quote")
	assert.Contains(t, prompt, "Emotions: 감동")
	assert.Contains(t, prompt, "within 90 to 110 BPM")
	assert.Contains(t, prompt, "compatible with jazz")
}

func TestBuildUserPrompt_SynthesisUsesAllMoments(t *testing.T) {
	moments := []Moment{{Quote: "q0"}, {Quote: "q1", Memo: "m1"}, {Quote: "q2"}, {Quote: "q3"}}
	prompt := BuildUserPrompt(Request{
		Book:         model.BookMetadata{Title: "데미안"},
		PriorContext: moments,
		Current:      &Moment{Quote: "한 줄 평", Memo: "긴 감상"},
		Synthesis:    true,
	})

	for _, m := range moments {
		assert.Contains(t, prompt, m.Quote)
	}
	assert.Contains(t, prompt, "Reflection: m1")
	assert.Contains(t, prompt, "Final reflection")
	assert.Contains(t, prompt, "긴 감상")
	assert.Equal(t, 4, strings.Count(prompt, "Moment "))
}
