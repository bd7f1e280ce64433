package generation

import (
	"context"
	"errors"
	"math"
	"time"

	"ReadingFM/core/apperr"
	"ReadingFM/core/render"
	"ReadingFM/logger"
	"ReadingFM/model"
	"ReadingFM/repository"
	"ReadingFM/storage"
)

const (
	defaultDeadline      = 300 * time.Second
	defaultTrackDuration = 120
	unknownJourney       = "unknown"
)

// Renderer 外部音频渲染服务
type Renderer interface {
	Submit(ctx context.Context, req render.Request) (string, error)
	Wait(ctx context.Context, jobID string) (*render.Output, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Uploader 对象存储
type Uploader interface {
	Upload(ctx context.Context, data []byte, path string) (string, error)
}

// StatusCache 状态缓存，状态变化后失效
type StatusCache interface {
	Invalidate(ctx context.Context, trackIDs ...string) error
}

// Config Worker 配置
type Config struct {
	Deadline      time.Duration // 单次生成的总时限
	MaxAttempts   int           // 每首音乐最多进入 generating 的次数，0 表示不限
	TrackDuration int           // 请求的音乐时长（秒）
}

// settledError 音乐已被认领后发生的错误。此时失败已写入音乐状态，重新执行等于再次渲染。
type settledError struct {
	err error
}

func (e *settledError) Error() string { return e.err.Error() }

func (e *settledError) Unwrap() error { return e.err }

func settled(err error) error {
	return &settledError{err: err}
}

// IsSettled 判断错误是否发生在认领之后
func IsSettled(err error) bool {
	var e *settledError
	return errors.As(err, &e)
}

// Worker 音乐生成状态机：pending -> generating -> completed | error
type Worker struct {
	tracks   repository.TrackRepository
	logs     repository.LogRepository
	renderer Renderer
	uploader Uploader
	cache    StatusCache
	cfg      Config
	now      func() time.Time
}

// WorkerOption 可选配置
type WorkerOption func(*Worker)

// WithStatusCache 设置状态缓存
func WithStatusCache(c StatusCache) WorkerOption {
	return func(w *Worker) {
		w.cache = c
	}
}

// WithWorkerClock 替换时间源
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker 创建生成 Worker
func NewWorker(tracks repository.TrackRepository, logs repository.LogRepository, renderer Renderer, uploader Uploader, cfg Config, opts ...WorkerOption) *Worker {
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.TrackDuration <= 0 {
		cfg.TrackDuration = defaultTrackDuration
	}
	w := &Worker{
		tracks:   tracks,
		logs:     logs,
		renderer: renderer,
		uploader: uploader,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// GenerateTrack 驱动一首音乐完成生成。已完成的音乐直接返回结果，不会再次调用渲染服务。
// 调用方取消 ctx 不会中断已经开始的生成，生成只受 Deadline 限制。
func (w *Worker) GenerateTrack(ctx context.Context, trackID string) (*model.GenerateResult, error) {
	track, err := w.tracks.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load music track", err)
	}
	if track == nil {
		return nil, apperr.New(apperr.KindNotFound, "music track not found")
	}
	if track.Status == model.TrackStatusCompleted {
		logger.Debug("音乐已生成，直接返回", logger.TrackID(trackID))
		return model.ResultFromTrack(track, "Music already generated"), nil
	}

	claimed, err := w.tracks.MarkGenerating(ctx, trackID, w.cfg.MaxAttempts, w.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update music track status", err)
	}
	if !claimed {
		return w.explainUnclaimed(ctx, trackID)
	}
	w.invalidate(ctx, trackID)
	logger.Info("开始生成音乐", logger.TrackID(trackID), logger.Int("attempt", track.GenerationAttempts+1))

	// 与调用方的取消解耦，只受自身时限约束
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.Deadline)
	defer cancel()

	fileURL, duration, size, err := w.run(runCtx, track)
	if err != nil {
		w.fail(runCtx, trackID, err)
		return nil, settled(err)
	}

	if err := w.tracks.MarkCompleted(context.WithoutCancel(ctx), trackID, fileURL, &duration, size); err != nil {
		if errors.Is(err, repository.ErrTransitionRejected) {
			// 生成超时后被巡检置为 error
			logger.Warn("音乐状态已被改变，放弃写入完成结果", logger.TrackID(trackID))
			return nil, settled(apperr.Wrap(apperr.KindInvalidState, "music track state changed during generation", err))
		}
		w.fail(runCtx, trackID, err)
		return nil, settled(apperr.Wrap(apperr.KindInternal, "failed to save generation result", err))
	}
	w.invalidate(ctx, trackID)

	logger.Info("音乐生成成功",
		logger.TrackID(trackID),
		logger.String("fileUrl", fileURL),
		logger.Int("duration", duration),
		logger.Int64("fileSize", size))

	size64 := size
	return &model.GenerateResult{
		Message:  "Music generated successfully",
		TrackID:  trackID,
		Status:   model.TrackStatusCompleted,
		FileURL:  fileURL,
		Duration: &duration,
		FileSize: &size64,
	}, nil
}

// run 渲染、下载、上传，返回公开地址、时长和大小
func (w *Worker) run(ctx context.Context, track *model.MusicTrack) (string, int, int64, error) {
	req := render.Request{
		Prompt:          track.Prompt,
		Genre:           model.StrVal(track.Genre),
		Mood:            model.StrVal(track.Mood),
		DurationSeconds: w.cfg.TrackDuration,
	}
	if track.Tempo != nil {
		req.Tempo = *track.Tempo
	}

	jobID, err := w.renderer.Submit(ctx, req)
	if err != nil {
		return "", 0, 0, apperr.Wrap(apperr.KindRenderFailed, "failed to submit render job", err)
	}
	if err := w.tracks.SetRenderJobID(ctx, track.ID, jobID); err != nil {
		logger.Warn("保存渲染任务ID失败", logger.TrackID(track.ID), logger.String("jobId", jobID), logger.ErrorField(err))
	}

	out, err := w.renderer.Wait(ctx, jobID)
	if err != nil {
		return "", 0, 0, apperr.Wrap(apperr.KindRenderFailed, "render job did not complete", err)
	}

	audio := out.Audio
	if len(audio) == 0 {
		audio, err = w.renderer.Download(ctx, out.ResultURL)
		if err != nil {
			return "", 0, 0, apperr.Wrap(apperr.KindRenderFailed, "failed to download rendered audio", err)
		}
	}

	journeyID := w.resolveJourneyID(ctx, track.ID)
	fileURL, err := w.uploader.Upload(ctx, audio, storage.TrackObjectPath(journeyID, track.ID))
	if err != nil {
		return "", 0, 0, apperr.Wrap(apperr.KindUploadFailed, "failed to upload audio", err)
	}

	duration := w.cfg.TrackDuration
	if out.DurationMs > 0 {
		duration = int(math.Round(float64(out.DurationMs) / 1000))
	}
	return fileURL, duration, int64(len(audio)), nil
}

// resolveJourneyID 通过引用该音乐的记录找到旅程，找不到时使用 unknown 目录
func (w *Worker) resolveJourneyID(ctx context.Context, trackID string) string {
	log, err := w.logs.GetLogByTrackID(ctx, trackID)
	if err != nil {
		logger.Warn("查询音乐所属记录失败", logger.TrackID(trackID), logger.ErrorField(err))
		return unknownJourney
	}
	if log == nil {
		logger.Warn("音乐没有对应的记录", logger.TrackID(trackID))
		return unknownJourney
	}
	return log.JourneyID
}

// fail generating -> error。使用独立 context，保证超时后仍能写入终态。
func (w *Worker) fail(ctx context.Context, trackID string, cause error) {
	logger.Error("音乐生成失败", logger.TrackID(trackID), logger.ErrorField(cause))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	message := cause.Error()
	var appErr *apperr.Error
	if errors.As(cause, &appErr) && appErr.Err != nil {
		message = appErr.Message + ": " + appErr.Err.Error()
	}
	if err := w.tracks.MarkFailed(writeCtx, trackID, message); err != nil {
		if errors.Is(err, repository.ErrTransitionRejected) {
			logger.Warn("音乐状态已不是 generating，跳过失败写入", logger.TrackID(trackID))
		} else {
			logger.Error("写入失败状态出错", logger.TrackID(trackID), logger.ErrorField(err))
		}
	}
	w.invalidate(writeCtx, trackID)
}

// explainUnclaimed 条件更新未命中时重新读取，判断原因
func (w *Worker) explainUnclaimed(ctx context.Context, trackID string) (*model.GenerateResult, error) {
	track, err := w.tracks.GetTrackByID(ctx, trackID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load music track", err)
	}
	if track == nil {
		return nil, apperr.New(apperr.KindNotFound, "music track not found")
	}

	switch track.Status {
	case model.TrackStatusCompleted:
		return model.ResultFromTrack(track, "Music already generated"), nil
	case model.TrackStatusGenerating:
		logger.Info("音乐正在生成中，跳过重复触发", logger.TrackID(trackID))
		return model.ResultFromTrack(track, "Music generation already in progress"), nil
	default:
		logger.Warn("音乐生成次数已达上限",
			logger.TrackID(trackID),
			logger.Int("attempts", track.GenerationAttempts),
			logger.Int("maxAttempts", w.cfg.MaxAttempts))
		return nil, apperr.New(apperr.KindInvalidState, "generation attempt limit reached")
	}
}

func (w *Worker) invalidate(ctx context.Context, trackID string) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Invalidate(context.WithoutCancel(ctx), trackID); err != nil {
		logger.Warn("清除音乐状态缓存失败", logger.TrackID(trackID), logger.ErrorField(err))
	}
}
