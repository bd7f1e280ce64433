package generation

import (
	"context"
	"time"

	"ReadingFM/logger"
	"ReadingFM/repository"
)

const (
	// StaleMessage 超时任务的错误信息
	StaleMessage = "generation deadline exceeded"

	defaultSupervisorInterval = time.Minute
	defaultGrace              = 30 * time.Second
)

// Supervisor 定期把超过时限仍处于 generating 的音乐置为 error，
// 覆盖进程崩溃或重启导致 Worker 没能写入终态的情况。
type Supervisor struct {
	tracks   repository.TrackRepository
	cache    StatusCache
	interval time.Duration
	deadline time.Duration
	grace    time.Duration
	now      func() time.Time
}

// NewSupervisor 创建巡检器
func NewSupervisor(tracks repository.TrackRepository, cache StatusCache, interval, deadline time.Duration) *Supervisor {
	if interval <= 0 {
		interval = defaultSupervisorInterval
	}
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	return &Supervisor{
		tracks:   tracks,
		cache:    cache,
		interval: interval,
		deadline: deadline,
		grace:    defaultGrace,
		now:      time.Now,
	}
}

// Sweep 执行一次巡检，返回被置为 error 的音乐ID
func (s *Supervisor) Sweep(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-(s.deadline + s.grace))
	ids, err := s.tracks.FailStaleGenerating(ctx, cutoff, StaleMessage)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	logger.Warn("发现超时的生成任务", logger.Int("count", len(ids)), logger.Any("trackIds", ids))
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, ids...); err != nil {
			logger.Warn("清除音乐状态缓存失败", logger.ErrorField(err))
		}
	}
	return ids, nil
}

// Run 按间隔巡检直到 ctx 结束
func (s *Supervisor) Run(ctx context.Context) error {
	logger.Info("生成任务巡检已启动",
		logger.Duration("interval", s.interval),
		logger.Duration("deadline", s.deadline))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error("生成任务巡检失败", logger.ErrorField(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("生成任务巡检已停止")
			return nil
		case <-ticker.C:
		}
	}
}
