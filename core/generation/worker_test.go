package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ReadingFM/core/apperr"
	"ReadingFM/internal/testsupport"
	"ReadingFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	mu  sync.Mutex
	ids []string
}

func (c *countingCache) Invalidate(ctx context.Context, trackIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, trackIDs...)
	return nil
}

type workerFixture struct {
	store    *testsupport.Store
	renderer *testsupport.FakeRenderer
	uploader *testsupport.FakeUploader
	cache    *countingCache
	worker   *Worker
}

func newWorkerFixture(cfg Config) *workerFixture {
	f := &workerFixture{
		store:    testsupport.NewStore(),
		renderer: testsupport.NewFakeRenderer(),
		uploader: testsupport.NewFakeUploader(),
		cache:    &countingCache{},
	}
	f.worker = NewWorker(f.store.Tracks(), f.store.Logs(), f.renderer, f.uploader, cfg, WithStatusCache(f.cache))
	return f
}

func (f *workerFixture) seedTrack(journeyID string, status model.TrackStatus) string {
	tempo := 82
	genre := "ambient"
	track := &model.MusicTrack{Prompt: "soft piano", Genre: &genre, Tempo: &tempo, Status: status}
	f.store.PutTrack(track)
	if journeyID != "" {
		f.store.PutLog(&model.ReadingLog{JourneyID: journeyID, LogType: model.LogTypeV0, MusicTrackID: &track.ID})
	}
	return track.ID
}

func TestGenerateTrack_Success(t *testing.T) {
	f := newWorkerFixture(Config{MaxAttempts: 5})
	id := f.seedTrack("j-1", model.TrackStatusPending)

	res, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, model.TrackStatusCompleted, res.Status)
	assert.Equal(t, "https://cdn.test/music-tracks/j-1/"+id+".mp3", res.FileURL)
	assert.Equal(t, 118, *res.Duration)
	assert.True(t, f.uploader.Has("j-1/"+id+".mp3"))

	track := f.store.Track(id)
	assert.Equal(t, model.TrackStatusCompleted, track.Status)
	assert.Equal(t, res.FileURL, track.FileURL)
	assert.Equal(t, int64(len("ID3-fake-audio")), *track.FileSize)
	assert.Equal(t, "job-1", track.RenderJobID)
	assert.Equal(t, 1, track.GenerationAttempts)

	require.Len(t, f.renderer.Requests, 1)
	assert.Equal(t, 82, f.renderer.Requests[0].Tempo)
	assert.Equal(t, 120, f.renderer.Requests[0].DurationSeconds)
	assert.Equal(t, 1, f.renderer.DownloadCalls)
	assert.Contains(t, f.cache.ids, id)
}

func TestGenerateTrack_IdempotentWhenCompleted(t *testing.T) {
	f := newWorkerFixture(Config{})
	id := f.seedTrack("j-1", model.TrackStatusPending)

	first, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)
	second, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, first.FileURL, second.FileURL)
	assert.Equal(t, model.TrackStatusCompleted, second.Status)
	assert.Equal(t, 1, f.renderer.Calls())
	assert.Equal(t, 1, f.uploader.Calls)
}

func TestGenerateTrack_RenderFailure(t *testing.T) {
	f := newWorkerFixture(Config{})
	f.renderer.WaitErr = errors.New("render job failed: content policy")
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	assert.Equal(t, apperr.KindRenderFailed, apperr.KindOf(err))

	track := f.store.Track(id)
	assert.Equal(t, model.TrackStatusError, track.Status)
	require.NotNil(t, track.ErrorMessage)
	assert.Contains(t, *track.ErrorMessage, "content policy")
	assert.Empty(t, track.FileURL)
	assert.Equal(t, 0, f.uploader.Calls)
}

func TestGenerateTrack_UploadFailure(t *testing.T) {
	f := newWorkerFixture(Config{})
	f.uploader.Err = errors.New("bucket unavailable")
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	assert.Equal(t, apperr.KindUploadFailed, apperr.KindOf(err))

	track := f.store.Track(id)
	assert.Equal(t, model.TrackStatusError, track.Status)
	assert.Contains(t, *track.ErrorMessage, "bucket unavailable")
}

func TestGenerateTrack_DownloadFailure(t *testing.T) {
	f := newWorkerFixture(Config{})
	f.renderer.DownloadErr = errors.New("status 404")
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	assert.Equal(t, apperr.KindRenderFailed, apperr.KindOf(err))
	assert.Equal(t, model.TrackStatusError, f.store.Track(id).Status)
}

func TestGenerateTrack_InlineAudioSkipsDownload(t *testing.T) {
	f := newWorkerFixture(Config{})
	f.renderer.InlineAudio = true
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, f.renderer.DownloadCalls)
}

func TestGenerateTrack_UnknownJourney(t *testing.T) {
	f := newWorkerFixture(Config{})
	id := f.seedTrack("", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, f.uploader.Has("unknown/"+id+".mp3"))
}

func TestGenerateTrack_NotFound(t *testing.T) {
	f := newWorkerFixture(Config{})

	_, err := f.worker.GenerateTrack(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, 0, f.renderer.Calls())
}

func TestGenerateTrack_AlreadyInProgress(t *testing.T) {
	f := newWorkerFixture(Config{})
	id := f.seedTrack("j-1", model.TrackStatusGenerating)

	res, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusGenerating, res.Status)
	assert.Contains(t, res.Message, "in progress")
	assert.Equal(t, 0, f.renderer.Calls())
}

func TestGenerateTrack_RetriggerAfterError(t *testing.T) {
	f := newWorkerFixture(Config{MaxAttempts: 2})
	f.renderer.SubmitErr = errors.New("temporarily unavailable")
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, model.TrackStatusError, f.store.Track(id).Status)

	f.renderer.SubmitErr = nil
	res, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusCompleted, res.Status)
	track := f.store.Track(id)
	assert.Equal(t, 2, track.GenerationAttempts)
	assert.Nil(t, track.ErrorMessage)
}

func TestGenerateTrack_AttemptCap(t *testing.T) {
	f := newWorkerFixture(Config{MaxAttempts: 1})
	f.renderer.SubmitErr = errors.New("unavailable")
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	require.Error(t, err)

	f.renderer.SubmitErr = nil
	_, err = f.worker.GenerateTrack(context.Background(), id)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Equal(t, 1, f.renderer.Calls())
	assert.Equal(t, model.TrackStatusError, f.store.Track(id).Status)
}

func TestGenerateTrack_DeadlineLeavesTerminalState(t *testing.T) {
	f := newWorkerFixture(Config{Deadline: 50 * time.Millisecond})
	f.renderer.BlockUntilCancel = true
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	assert.Equal(t, apperr.KindRenderFailed, apperr.KindOf(err))

	track := f.store.Track(id)
	assert.Equal(t, model.TrackStatusError, track.Status)
	assert.Contains(t, *track.ErrorMessage, "deadline exceeded")
}

func TestGenerateTrack_CallerCancellationDoesNotAbort(t *testing.T) {
	f := newWorkerFixture(Config{})
	id := f.seedTrack("j-1", model.TrackStatusPending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.worker.GenerateTrack(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TrackStatusCompleted, res.Status)
}

func TestGenerateTrack_StatusNeverRegresses(t *testing.T) {
	f := newWorkerFixture(Config{})
	id := f.seedTrack("j-1", model.TrackStatusPending)

	_, err := f.worker.GenerateTrack(context.Background(), id)
	require.NoError(t, err)

	ok, err := f.store.Tracks().MarkGenerating(context.Background(), id, 0, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.TrackStatusCompleted, f.store.Track(id).Status)
}
