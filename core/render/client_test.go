package render

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPI = "https://render.test"

func newMockedClient(t *testing.T, attempts int) *Client {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewClient(Config{
		APIURL:          testAPI,
		APIKey:          "mk-test",
		PollInterval:    time.Millisecond,
		MaxPollAttempts: attempts,
	}, WithHTTPClient(hc))
}

func TestSubmit(t *testing.T) {
	c := newMockedClient(t, 3)

	var body submitRequest
	httpmock.RegisterResponder(http.MethodPost, testAPI+"/v1/instrumental/generate",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer mk-test", req.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			return httpmock.NewJsonResponse(200, map[string]string{"id": "job-1", "status": "preparing"})
		})

	id, err := c.Submit(context.Background(), Request{Prompt: "soft piano", Genre: "ambient", Tempo: 80})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, "auto", body.Model)
	assert.Contains(t, body.Prompt, "soft piano")
	assert.Contains(t, body.Prompt, "Genre: ambient")
	assert.Contains(t, body.Prompt, "Tempo: 80 BPM")
}

func TestSubmit_MissingTaskID(t *testing.T) {
	c := newMockedClient(t, 3)
	httpmock.RegisterResponder(http.MethodPost, testAPI+"/v1/instrumental/generate",
		httpmock.NewStringResponder(200, `{"status":"preparing"}`))

	_, err := c.Submit(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no task id")
}

func TestSubmit_ServiceError(t *testing.T) {
	c := newMockedClient(t, 3)
	httpmock.RegisterResponder(http.MethodPost, testAPI+"/v1/instrumental/generate",
		httpmock.NewStringResponder(402, `{"error":"insufficient credits"}`))

	_, err := c.Submit(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 402")
}

func TestWait_PollsUntilSucceeded(t *testing.T) {
	c := newMockedClient(t, 5)

	responses := []string{
		`{"id":"job-1","status":"preparing"}`,
		`{"id":"job-1","status":"running"}`,
		`{"id":"job-1","status":"succeeded","choices":[{"url":"https://cdn.test/job-1.mp3","duration":118000}]}`,
	}
	call := 0
	httpmock.RegisterResponder(http.MethodGet, testAPI+"/v1/instrumental/query/job-1",
		func(req *http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, responses[call])
			call++
			return resp, nil
		})

	out, err := c.Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/job-1.mp3", out.ResultURL)
	assert.Equal(t, int64(118000), out.DurationMs)
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestWait_TerminalFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"failed", `{"id":"job-1","status":"failed","failed_reason":"content policy"}`, "content policy"},
		{"cancelled", `{"id":"job-1","status":"cancelled"}`, "cancelled"},
		{"timeouted", `{"id":"job-1","status":"timeouted"}`, "timed out"},
		{"succeeded without url", `{"id":"job-1","status":"succeeded","choices":[]}`, "without a result url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t, 5)
			httpmock.RegisterResponder(http.MethodGet, testAPI+"/v1/instrumental/query/job-1",
				httpmock.NewStringResponder(200, tt.body))

			_, err := c.Wait(context.Background(), "job-1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, 1, httpmock.GetTotalCallCount())
		})
	}
}

func TestWait_PollingTimeout(t *testing.T) {
	c := newMockedClient(t, 3)
	httpmock.RegisterResponder(http.MethodGet, testAPI+"/v1/instrumental/query/job-1",
		httpmock.NewStringResponder(200, `{"id":"job-1","status":"running"}`))

	_, err := c.Wait(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "polling timeout")
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestWait_ClientErrorStopsPolling(t *testing.T) {
	c := newMockedClient(t, 5)
	httpmock.RegisterResponder(http.MethodGet, testAPI+"/v1/instrumental/query/job-1",
		httpmock.NewStringResponder(404, `not found`))

	_, err := c.Wait(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestWait_ContextCancelled(t *testing.T) {
	c := newMockedClient(t, 50)
	httpmock.RegisterResponder(http.MethodGet, testAPI+"/v1/instrumental/query/job-1",
		httpmock.NewStringResponder(200, `{"id":"job-1","status":"running"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Wait(ctx, "job-1")
	require.Error(t, err)
}

func TestDownload(t *testing.T) {
	c := newMockedClient(t, 3)
	httpmock.RegisterResponder(http.MethodGet, "https://cdn.test/job-1.mp3",
		httpmock.NewBytesResponder(200, []byte("ID3-audio")))

	data, err := c.Download(context.Background(), "https://cdn.test/job-1.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3-audio"), data)
}

func TestDownload_NotFoundIsPermanent(t *testing.T) {
	c := newMockedClient(t, 3)
	httpmock.RegisterResponder(http.MethodGet, "https://cdn.test/missing.mp3",
		httpmock.NewStringResponder(404, ""))

	_, err := c.Download(context.Background(), "https://cdn.test/missing.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, JobCompleted, normalizeStatus("succeeded"))
	assert.Equal(t, JobFailed, normalizeStatus("timeouted"))
	assert.Equal(t, JobGenerating, normalizeStatus("running"))
	assert.Equal(t, JobPreparing, normalizeStatus("queued"))
}
