package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ReadingFM/logger"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 96
	defaultDuration        = 120
	maxDownloadBytes       = 50 << 20
)

// JobStatus 外部渲染任务状态
type JobStatus string

const (
	JobPreparing  JobStatus = "preparing"
	JobGenerating JobStatus = "generating"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Config 渲染服务配置
type Config struct {
	APIURL          string
	APIKey          string
	Model           string
	Timeout         time.Duration // 单次 HTTP 请求超时
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Request 渲染请求
type Request struct {
	Prompt          string
	Genre           string
	Mood            string
	Tempo           int
	DurationSeconds int
}

// JobState 查询结果
type JobState struct {
	ID         string
	Status     JobStatus
	ResultURL  string
	DurationMs int64
	SizeBytes  int64
	Error      string
}

// Output 渲染完成后的结果，Audio 非空时无需再下载
type Output struct {
	JobID      string
	ResultURL  string
	Audio      []byte
	DurationMs int64
	SizeBytes  int64
}

// Client 渲染服务客户端
type Client struct {
	cfg        Config
	httpClient *http.Client
	pollPolicy func() backoff.BackOff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient 创建渲染服务客户端
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "auto"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	c.pollPolicy = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.PollInterval), uint64(c.cfg.MaxPollAttempts-1))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type jobResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	FailedReason string `json:"failed_reason"`
	Error        string `json:"error"`
	Choices      []struct {
		URL      string `json:"url"`
		Duration int64  `json:"duration"`
		Size     int64  `json:"size"`
	} `json:"choices"`
}

// Submit 提交渲染任务，返回外部任务ID
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("render submit: prompt required")
	}
	body, err := json.Marshal(submitRequest{Model: c.cfg.Model, Prompt: composePrompt(req)})
	if err != nil {
		return "", fmt.Errorf("render submit: marshal: %w", err)
	}

	var resp jobResponse
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.APIURL+"/v1/instrumental/generate", bytes.NewReader(body), &resp); err != nil {
		return "", fmt.Errorf("render submit: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("render submit: no task id received")
	}
	return resp.ID, nil
}

// Query 查询任务状态
func (c *Client) Query(ctx context.Context, jobID string) (*JobState, error) {
	var resp jobResponse
	if err := c.doJSON(ctx, http.MethodGet, c.cfg.APIURL+"/v1/instrumental/query/"+jobID, nil, &resp); err != nil {
		return nil, fmt.Errorf("render query: %w", err)
	}

	state := &JobState{ID: jobID, Status: normalizeStatus(resp.Status)}
	switch resp.Status {
	case "cancelled":
		state.Error = "music generation was cancelled"
	case "timeouted":
		state.Error = "music generation timed out on render server"
	case "failed":
		state.Error = firstNonEmpty(resp.FailedReason, resp.Error, "unknown error")
	}
	if state.Status == JobCompleted {
		if len(resp.Choices) == 0 || resp.Choices[0].URL == "" {
			state.Status = JobFailed
			state.Error = "render succeeded without a result url"
		} else {
			state.ResultURL = resp.Choices[0].URL
			state.DurationMs = resp.Choices[0].Duration
			state.SizeBytes = resp.Choices[0].Size
		}
	}
	return state, nil
}

var errStillRunning = errors.New("render job still running")

// Wait 按固定间隔轮询直到任务结束或超过最大次数
func (c *Client) Wait(ctx context.Context, jobID string) (*Output, error) {
	var final *JobState
	attempt := 0

	operation := func() error {
		attempt++
		state, err := c.Query(ctx, jobID)
		if err != nil {
			var statusErr *httpStatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			// 网络错误和 5xx 继续轮询
			logger.Warn("查询渲染任务失败，稍后重试", logger.String("jobId", jobID), logger.ErrorField(err))
			return err
		}
		switch state.Status {
		case JobCompleted:
			final = state
			return nil
		case JobFailed:
			return backoff.Permanent(fmt.Errorf("render job failed: %s", state.Error))
		default:
			logger.Debug("渲染任务进行中",
				logger.String("jobId", jobID),
				logger.Int("attempt", attempt),
				logger.String("status", string(state.Status)))
			return errStillRunning
		}
	}

	err := backoff.Retry(operation, backoff.WithContext(c.pollPolicy(), ctx))
	if err != nil {
		if errors.Is(err, errStillRunning) {
			return nil, fmt.Errorf("render polling timeout after %d attempts", attempt)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render wait: %w", ctxErr)
		}
		return nil, err
	}
	return &Output{
		JobID:      jobID,
		ResultURL:  final.ResultURL,
		DurationMs: final.DurationMs,
		SizeBytes:  final.SizeBytes,
	}, nil
}

// Download 下载渲染结果，5xx 时有限重试
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to download: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := &httpStatusError{StatusCode: resp.StatusCode}
			if resp.StatusCode >= http.StatusInternalServerError {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		if len(body) > maxDownloadBytes {
			return backoff.Permanent(fmt.Errorf("audio file exceeds %d bytes", maxDownloadBytes))
		}
		if len(body) == 0 {
			return backoff.Permanent(errors.New("downloaded audio is empty"))
		}
		data = body
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("render download: %w", err)
	}
	return data, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("render service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("render service returned status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func normalizeStatus(s string) JobStatus {
	switch s {
	case "succeeded", "completed":
		return JobCompleted
	case "failed", "cancelled", "timeouted":
		return JobFailed
	case "running", "processing", "streaming", "generating":
		return JobGenerating
	default:
		return JobPreparing
	}
}

// composePrompt 把风格信息拼进提示词，渲染接口只接受一段文本
func composePrompt(req Request) string {
	parts := []string{strings.TrimSpace(req.Prompt)}
	if req.Genre != "" {
		parts = append(parts, "Genre: "+req.Genre)
	}
	if req.Mood != "" {
		parts = append(parts, "Mood: "+req.Mood)
	}
	if req.Tempo > 0 {
		parts = append(parts, fmt.Sprintf("Tempo: %d BPM", req.Tempo))
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = defaultDuration
	}
	parts = append(parts, fmt.Sprintf("Length: about %d seconds", duration))
	return strings.Join(parts, ". ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
