package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"ReadingFM/internal/testsupport"
	"ReadingFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_SweepFailsStaleTracks(t *testing.T) {
	store := testsupport.NewStore()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-10 * time.Minute)
	fresh := now.Add(-time.Minute)

	store.PutTrack(&model.MusicTrack{ID: "stale", Status: model.TrackStatusGenerating, GenerationStartedAt: &stale})
	store.PutTrack(&model.MusicTrack{ID: "fresh", Status: model.TrackStatusGenerating, GenerationStartedAt: &fresh})
	store.PutTrack(&model.MusicTrack{ID: "done", Status: model.TrackStatusCompleted, GenerationStartedAt: &stale})

	cache := &countingCache{}
	s := NewSupervisor(store.Tracks(), cache, time.Minute, 5*time.Minute)
	s.now = func() time.Time { return now }

	ids, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, ids)
	assert.Equal(t, []string{"stale"}, cache.ids)

	track := store.Track("stale")
	assert.Equal(t, model.TrackStatusError, track.Status)
	assert.Equal(t, StaleMessage, *track.ErrorMessage)
	assert.Equal(t, model.TrackStatusGenerating, store.Track("fresh").Status)
	assert.Equal(t, model.TrackStatusCompleted, store.Track("done").Status)
}

func TestSupervisor_RunStopsOnCancel(t *testing.T) {
	store := testsupport.NewStore()
	store.SetFail("FailStaleGenerating", errors.New("db down"))
	s := NewSupervisor(store.Tracks(), nil, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.GreaterOrEqual(t, store.CallCount("FailStaleGenerating"), 2)
}
