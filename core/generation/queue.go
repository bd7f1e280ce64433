package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ReadingFM/core/apperr"
	"ReadingFM/logger"
	"ReadingFM/model"

	"github.com/hibiken/asynq"
)

// TypeGenerateTrack 音乐生成任务类型
const TypeGenerateTrack = "music:generate"

// 任务超时在生成时限之外多留一些余量
const taskTimeoutSlack = 30 * time.Second

// GeneratePayload 任务内容
type GeneratePayload struct {
	TrackID string `json:"track_id"`
}

// Dispatcher 把生成请求放入队列，调用方不等待结果
type Dispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
}

// NewDispatcher 创建任务分发器，inspector 可为 nil
func NewDispatcher(client *asynq.Client, inspector *asynq.Inspector, queue string, deadline time.Duration) *Dispatcher {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	return &Dispatcher{
		client:    client,
		inspector: inspector,
		queue:     queue,
		timeout:   deadline + taskTimeoutSlack,
	}
}

// NewGenerateTrackTask 构造生成任务，任务ID即音乐ID，同一首音乐同时只会有一个任务
func NewGenerateTrackTask(trackID string) (*asynq.Task, error) {
	payload, err := json.Marshal(GeneratePayload{TrackID: trackID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerateTrack, payload), nil
}

// Enqueue 提交生成任务。返回 false 表示该音乐已有排队或执行中的任务。
func (d *Dispatcher) Enqueue(ctx context.Context, trackID string) (bool, error) {
	task, err := NewGenerateTrackTask(trackID)
	if err != nil {
		return false, fmt.Errorf("failed to build task: %w", err)
	}
	opts := []asynq.Option{
		asynq.TaskID(trackID),
		asynq.Queue(d.queue),
		asynq.MaxRetry(2),
		asynq.Timeout(d.timeout),
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		if !d.releaseArchived(trackID) {
			logger.Info("生成任务已在队列中", logger.TrackID(trackID))
			return false, nil
		}
		info, err = d.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return false, fmt.Errorf("failed to enqueue generation task: %w", err)
	}

	logger.Info("生成任务已入队", logger.TrackID(trackID), logger.String("queue", info.Queue))
	return true, nil
}

// releaseArchived 上一次任务已归档时删除它，允许重新提交
func (d *Dispatcher) releaseArchived(trackID string) bool {
	if d.inspector == nil {
		return false
	}
	info, err := d.inspector.GetTaskInfo(d.queue, trackID)
	if err != nil || info.State != asynq.TaskStateArchived {
		return false
	}
	if err := d.inspector.DeleteTask(d.queue, trackID); err != nil {
		logger.Warn("删除归档任务失败", logger.TrackID(trackID), logger.ErrorField(err))
		return false
	}
	return true
}

// TrackGenerator 由 Worker 实现
type TrackGenerator interface {
	GenerateTrack(ctx context.Context, trackID string) (*model.GenerateResult, error)
}

// TaskHandler 队列任务处理器
type TaskHandler struct {
	generator TrackGenerator
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(generator TrackGenerator) *TaskHandler {
	return &TaskHandler{generator: generator}
}

// Register 注册到 asynq 路由
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeGenerateTrack, h.ProcessTask)
}

// ProcessTask 处理生成任务。生成失败已经写入音乐状态，不再由队列重试；
// 只有认领音乐之前的基础设施错误交给队列重试，认领之后的错误带 SkipRetry 归档。
func (h *TaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TrackID == "" {
		return fmt.Errorf("missing track id: %w", asynq.SkipRetry)
	}

	res, err := h.generator.GenerateTrack(ctx, payload.TrackID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			if IsSettled(err) {
				logger.Error("生成结果写入失败，任务不再重试", logger.TrackID(payload.TrackID), logger.ErrorField(err))
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		logger.Warn("生成任务结束但未成功",
			logger.TrackID(payload.TrackID),
			logger.String("kind", string(apperr.KindOf(err))),
			logger.ErrorField(err))
		return nil
	}

	logger.Info("生成任务完成",
		logger.TrackID(payload.TrackID),
		logger.String("status", string(res.Status)),
		logger.String("message", res.Message))
	return nil
}
