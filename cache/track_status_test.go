package cache

import (
	"context"
	"testing"
	"time"

	"ReadingFM/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*TrackStatusCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTrackStatusCache(client, 10*time.Second), mr
}

func TestTrackStatusCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	track := &model.MusicTrack{ID: "t-1", Prompt: "warm strings", Status: model.TrackStatusGenerating}
	require.NoError(t, c.Set(ctx, track))
	assert.Equal(t, 10*time.Second, mr.TTL(TrackStatusKey("t-1")))

	got, err := c.Get(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.TrackStatusGenerating, got.Status)
	assert.Equal(t, "warm strings", got.Prompt)
}

func TestTrackStatusCache_TerminalLivesLonger(t *testing.T) {
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(context.Background(), &model.MusicTrack{ID: "t-1", Status: model.TrackStatusCompleted}))
	assert.Equal(t, 300*time.Second, mr.TTL(TrackStatusKey("t-1")))
}

func TestTrackStatusCache_MissAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	got, err := c.Get(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, &model.MusicTrack{ID: "t-1", Status: model.TrackStatusPending}))
	mr.FastForward(11 * time.Second)
	got, err = c.Get(ctx, "t-1")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTrackStatusCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &model.MusicTrack{ID: "t-1", Status: model.TrackStatusPending}))
	require.NoError(t, c.Set(ctx, &model.MusicTrack{ID: "t-2", Status: model.TrackStatusPending}))
	require.NoError(t, c.Invalidate(ctx, "t-1", "t-2"))
	assert.False(t, mr.Exists(TrackStatusKey("t-1")))
	assert.False(t, mr.Exists(TrackStatusKey("t-2")))
}

func TestTrackStatusCache_CorruptEntryDropped(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(TrackStatusKey("t-1"), "{not json"))

	got, err := c.Get(context.Background(), "t-1")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists(TrackStatusKey("t-1")))
}

func TestTrackStatusCache_NilClientIsNoop(t *testing.T) {
	c := NewTrackStatusCache(nil, 0)
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, &model.MusicTrack{ID: "t-1"}))
	got, err := c.Get(ctx, "t-1")
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, "t-1"))
}
