package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ReadingFM/logger"
	"ReadingFM/model"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultProgressStep   = time.Second
	defaultMaxDuration    = 6 * time.Minute
	defaultTriggerTimeout = 6 * time.Minute
	defaultLongWaitAfter  = 3 * time.Minute
	maxSimulatedProgress  = 90.0
)

// ErrTimeout 超过最长等待时间仍未结束
var ErrTimeout = errors.New("polling timed out before the track reached a terminal state")

// Config 轮询配置
type Config struct {
	BaseURL      string
	Token        string
	PollInterval time.Duration
	ProgressStep time.Duration
	MaxDuration  time.Duration
	// LongWaitAfter 超过该时长仍未结束时在进度中标记 LongWait
	LongWaitAfter time.Duration
}

// Progress 对外展示的进度。Percent 是模拟值，与真实渲染进度无关。
type Progress struct {
	TrackID      string
	Status       model.TrackStatus
	Percent      float64
	FileURL      string
	Duration     *int
	ErrorMessage string
	LongWait     bool
}

// Done 是否已到终态
func (p Progress) Done() bool {
	return p.Status.IsTerminal()
}

// Controller 触发生成并轮询状态
type Controller struct {
	cfg        Config
	httpClient *http.Client
	wg         sync.WaitGroup
}

// Option 可选配置
type Option func(*Controller)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Controller) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewController 创建轮询控制器
func NewController(cfg Config, opts ...Option) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ProgressStep <= 0 {
		cfg.ProgressStep = defaultProgressStep
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	if cfg.LongWaitAfter <= 0 {
		cfg.LongWaitAfter = defaultLongWaitAfter
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Controller{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NextProgress 模拟进度：50 以下每步 +2，70 以下 +1，90 以下 +0.5，最高停在 90
func NextProgress(p float64) float64 {
	switch {
	case p < 50:
		p += 2
	case p < 70:
		p++
	case p < maxSimulatedProgress:
		p += 0.5
	}
	if p > maxSimulatedProgress {
		p = maxSimulatedProgress
	}
	return p
}

// Trigger 以分离的方式调用生成接口，不等待结果。调用方取消轮询不会影响这个请求。
func (c *Controller) Trigger(trackID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultTriggerTimeout)
		defer cancel()

		req, err := c.newRequest(ctx, http.MethodPost, "/api/tracks/"+url.PathEscape(trackID)+"/generate")
		if err != nil {
			logger.Warn("创建生成请求失败", logger.TrackID(trackID), logger.ErrorField(err))
			return
		}
		hc := *c.httpClient
		hc.Timeout = 0
		resp, err := hc.Do(req)
		if err != nil {
			logger.Warn("触发生成请求失败", logger.TrackID(trackID), logger.ErrorField(err))
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		logger.Debug("生成请求已返回", logger.TrackID(trackID), logger.Int("status", resp.StatusCode))
	}()
}

// WaitTriggers 等待所有分离的触发请求结束，命令行退出前调用
func (c *Controller) WaitTriggers() {
	c.wg.Wait()
}

// TriggerAndWatch 触发生成并开始轮询
func (c *Controller) TriggerAndWatch(ctx context.Context, trackID string, onProgress func(Progress)) (*Progress, error) {
	c.Trigger(trackID)
	return c.Watch(ctx, trackID, onProgress)
}

// Watch 定期查询状态直到终态、超时或 ctx 取消。单次查询失败只记录日志，继续轮询。
func (c *Controller) Watch(ctx context.Context, trackID string, onProgress func(Progress)) (*Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MaxDuration)
	defer cancel()
	started := time.Now()

	current := Progress{TrackID: trackID, Status: model.TrackStatusPending}
	emit := func() {
		if onProgress != nil {
			onProgress(current)
		}
	}

	pollTicker := time.NewTicker(c.cfg.PollInterval)
	defer pollTicker.Stop()
	progressTicker := time.NewTicker(c.cfg.ProgressStep)
	defer progressTicker.Stop()

	poll := func() bool {
		track, err := c.GetTrack(ctx, trackID)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("查询音乐状态失败，继续轮询", logger.TrackID(trackID), logger.ErrorField(err))
			}
			return false
		}
		current.Status = track.Status
		switch track.Status {
		case model.TrackStatusCompleted:
			current.Percent = 100
			current.FileURL = track.FileURL
			current.Duration = track.Duration
			emit()
			return true
		case model.TrackStatusError:
			current.ErrorMessage = model.StrVal(track.ErrorMessage)
			emit()
			return true
		}
		return false
	}

	if poll() {
		return &current, nil
	}
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &current, ErrTimeout
			}
			return &current, ctx.Err()
		case <-progressTicker.C:
			current.Percent = NextProgress(current.Percent)
			if !current.LongWait && time.Since(started) > c.cfg.LongWaitAfter {
				current.LongWait = true
				logger.Info("音乐生成耗时较长，继续等待", logger.TrackID(trackID), logger.Duration("elapsed", time.Since(started)))
			}
			emit()
		case <-pollTicker.C:
			if poll() {
				return &current, nil
			}
		}
	}
}

type envelope struct {
	Success bool              `json:"success"`
	Data    *model.MusicTrack `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
}

// GetTrack 读取音乐当前状态
func (c *Controller) GetTrack(ctx context.Context, trackID string) (*model.MusicTrack, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/tracks/"+url.PathEscape(trackID))
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer resp.Body.Close()

	var body envelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode track response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !body.Success || body.Data == nil {
		return nil, fmt.Errorf("track query failed with status %d: %s %s", resp.StatusCode, body.Error, body.Message)
	}
	return body.Data, nil
}

func (c *Controller) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}
