package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ReadingFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextProgress(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 2},
		{48, 50},
		{50, 51},
		{69, 70},
		{70, 70.5},
		{89.5, 90},
		{90, 90},
		{95, 90},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextProgress(tt.in), "from %v", tt.in)
	}
}

func TestNextProgress_NeverExceedsCap(t *testing.T) {
	p := 0.0
	for i := 0; i < 500; i++ {
		next := NextProgress(p)
		assert.GreaterOrEqual(t, next, p)
		p = next
	}
	assert.Equal(t, 90.0, p)
}

type fakeAPI struct {
	mu          sync.Mutex
	polls       int32
	triggers    int32
	completeAt  int32
	failAt      int32
	transientAt int32
	authHeader  string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks/t-1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.triggers, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("/api/tracks/t-1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authHeader = r.Header.Get("Authorization")
		f.mu.Unlock()

		n := atomic.AddInt32(&f.polls, 1)
		if f.transientAt > 0 && n == f.transientAt {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
			return
		}
		track := model.MusicTrack{ID: "t-1", Status: model.TrackStatusGenerating}
		if f.completeAt > 0 && n >= f.completeAt {
			d := 118
			track.Status = model.TrackStatusCompleted
			track.FileURL = "https://cdn.test/j-1/t-1.mp3"
			track.Duration = &d
		}
		if f.failAt > 0 && n >= f.failAt {
			msg := "Music generation failed: render failed"
			track.Status = model.TrackStatusError
			track.ErrorMessage = &msg
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": track})
	})
	return mux
}

func newTestController(url string, cfg Config) *Controller {
	cfg.BaseURL = url
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.ProgressStep == 0 {
		cfg.ProgressStep = 5 * time.Millisecond
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 2 * time.Second
	}
	return NewController(cfg)
}

func TestTriggerAndWatch_Completes(t *testing.T) {
	api := &fakeAPI{completeAt: 4}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := newTestController(srv.URL, Config{Token: "tok"})
	var seen []Progress
	var mu sync.Mutex
	res, err := c.TriggerAndWatch(context.Background(), "t-1", func(p Progress) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})
	c.WaitTriggers()
	require.NoError(t, err)

	assert.Equal(t, model.TrackStatusCompleted, res.Status)
	assert.Equal(t, 100.0, res.Percent)
	assert.Equal(t, "https://cdn.test/j-1/t-1.mp3", res.FileURL)
	assert.Equal(t, 118, *res.Duration)
	assert.True(t, res.Done())
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.triggers))
	api.mu.Lock()
	assert.Equal(t, "Bearer tok", api.authHeader)
	api.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i].Percent, seen[i-1].Percent)
	}
	for _, p := range seen[:len(seen)-1] {
		assert.LessOrEqual(t, p.Percent, 90.0)
	}
	assert.Equal(t, 100.0, seen[len(seen)-1].Percent)
}

func TestWatch_ErrorStateStops(t *testing.T) {
	api := &fakeAPI{failAt: 2}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := newTestController(srv.URL, Config{})
	res, err := c.Watch(context.Background(), "t-1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusError, res.Status)
	assert.Contains(t, res.ErrorMessage, "render failed")
	assert.Empty(t, res.FileURL)
}

func TestWatch_ToleratesTransientErrors(t *testing.T) {
	api := &fakeAPI{transientAt: 2, completeAt: 4}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := newTestController(srv.URL, Config{})
	res, err := c.Watch(context.Background(), "t-1", nil)
	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusCompleted, res.Status)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&api.polls), int32(4))
}

func TestWatch_MaxDuration(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := newTestController(srv.URL, Config{MaxDuration: 60 * time.Millisecond})
	res, err := c.Watch(context.Background(), "t-1", nil)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, model.TrackStatusGenerating, res.Status)
	assert.LessOrEqual(t, res.Percent, 90.0)
}

func TestWatch_CallerCancelDoesNotCancelTrigger(t *testing.T) {
	release := make(chan struct{})
	var finished int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks/t-1/generate", func(w http.ResponseWriter, r *http.Request) {
		<-release
		if r.Context().Err() == nil {
			atomic.StoreInt32(&finished, 1)
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/tracks/t-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    model.MusicTrack{ID: "t-1", Status: model.TrackStatusGenerating},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestController(srv.URL, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err := c.TriggerAndWatch(ctx, "t-1", nil)
	assert.ErrorIs(t, err, ErrTimeout)

	close(release)
	c.WaitTriggers()
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}

func TestGetTrack_RejectsFailureEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"not_found","message":"Music track not found"}`))
	}))
	defer srv.Close()

	c := newTestController(srv.URL, Config{})
	_, err := c.GetTrack(context.Background(), "t-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Music track not found")
}

func TestWatch_MarksLongWait(t *testing.T) {
	api := &fakeAPI{completeAt: 12}
	srv := httptest.NewServer(api.handler())
	defer srv.Close()

	c := newTestController(srv.URL, Config{LongWaitAfter: 30 * time.Millisecond})
	var mu sync.Mutex
	long := 0
	res, err := c.Watch(context.Background(), "t-1", func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.LongWait {
			long++
		}
	})
	require.NoError(t, err)
	assert.True(t, res.LongWait)
	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, long, 0)
}
