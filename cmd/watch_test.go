package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ReadingFM/core/poller"
	"ReadingFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWatch_WaitsForTriggerBeforeReturning(t *testing.T) {
	var triggered, polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracks/t-1/generate", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(80 * time.Millisecond)
		atomic.StoreInt32(&triggered, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/tracks/t-1", func(w http.ResponseWriter, r *http.Request) {
		track := model.MusicTrack{ID: "t-1", Status: model.TrackStatusGenerating}
		if atomic.AddInt32(&polls, 1) >= 2 {
			track.Status = model.TrackStatusCompleted
			track.FileURL = "https://cdn.test/j-1/t-1.mp3"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": track})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := poller.NewController(poller.Config{
		BaseURL:      srv.URL,
		PollInterval: 10 * time.Millisecond,
		ProgressStep: 5 * time.Millisecond,
		MaxDuration:  2 * time.Second,
	})
	var out bytes.Buffer
	require.NoError(t, runWatch(context.Background(), c, "t-1", true, &out))

	assert.Equal(t, int32(1), atomic.LoadInt32(&triggered))
	assert.Contains(t, out.String(), "生成完成: https://cdn.test/j-1/t-1.mp3")
}

func TestRunWatch_TimeoutReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    model.MusicTrack{ID: "t-1", Status: model.TrackStatusGenerating},
		})
	}))
	defer srv.Close()

	c := poller.NewController(poller.Config{
		BaseURL:      srv.URL,
		PollInterval: 10 * time.Millisecond,
		ProgressStep: 5 * time.Millisecond,
		MaxDuration:  50 * time.Millisecond,
	})
	var out bytes.Buffer
	err := runWatch(context.Background(), c, "t-1", false, &out)
	assert.ErrorIs(t, err, poller.ErrTimeout)
	assert.Contains(t, out.String(), "等待超时")
}
