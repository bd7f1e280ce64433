package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ReadingFM/core/prompt"
	"ReadingFM/core/render"
	"ReadingFM/model"

	"github.com/brianvoe/gofakeit/v6"
)

// FakePrompt 可编排的提示词服务，记录每次请求
type FakePrompt struct {
	mu       sync.Mutex
	Err      error
	Result   *prompt.Result
	Requests []prompt.Request
}

// NewFakePrompt 默认返回固定的合法结果
func NewFakePrompt() *FakePrompt {
	return &FakePrompt{Result: &prompt.Result{
		Prompt:      "gentle ambient piano with soft strings",
		Genre:       "ambient",
		Mood:        "contemplative",
		Tempo:       80,
		Description: "잔잔한 피아노로 시작하는 독서의 순간",
	}}
}

// Synthesize 实现提示词生成接口
func (f *FakePrompt) Synthesize(ctx context.Context, req prompt.Request) (*prompt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return nil, f.Err
	}
	res := *f.Result
	return &res, nil
}

// Calls 调用次数
func (f *FakePrompt) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// LastRequest 最近一次请求
func (f *FakePrompt) LastRequest() prompt.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return prompt.Request{}
	}
	return f.Requests[len(f.Requests)-1]
}

// FakeRenderer 可编排的渲染服务。BlockUntilCancel 为 true 时 Wait 一直阻塞到 ctx 结束。
type FakeRenderer struct {
	mu               sync.Mutex
	SubmitErr        error
	WaitErr          error
	DownloadErr      error
	Audio            []byte
	InlineAudio      bool
	DurationMs       int64
	BlockUntilCancel bool

	SubmitCalls   int
	WaitCalls     int
	DownloadCalls int
	Requests      []render.Request
}

// NewFakeRenderer 默认成功，返回一段假音频
func NewFakeRenderer() *FakeRenderer {
	return &FakeRenderer{Audio: []byte("ID3-fake-audio"), DurationMs: 118000}
}

// Submit 提交任务
func (f *FakeRenderer) Submit(ctx context.Context, req render.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SubmitCalls++
	f.Requests = append(f.Requests, req)
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	return fmt.Sprintf("job-%d", f.SubmitCalls), nil
}

// Wait 等待任务完成
func (f *FakeRenderer) Wait(ctx context.Context, jobID string) (*render.Output, error) {
	f.mu.Lock()
	f.WaitCalls++
	block := f.BlockUntilCancel
	waitErr := f.WaitErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, fmt.Errorf("render wait: %w", ctx.Err())
	}
	if waitErr != nil {
		return nil, waitErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := &render.Output{
		JobID:      jobID,
		ResultURL:  "https://render.test/" + jobID + ".mp3",
		DurationMs: f.DurationMs,
		SizeBytes:  int64(len(f.Audio)),
	}
	if f.InlineAudio {
		out.Audio = append([]byte(nil), f.Audio...)
	}
	return out, nil
}

// Download 下载结果
func (f *FakeRenderer) Download(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DownloadCalls++
	if f.DownloadErr != nil {
		return nil, f.DownloadErr
	}
	return append([]byte(nil), f.Audio...), nil
}

// Calls 提交次数
func (f *FakeRenderer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SubmitCalls
}

// FakeUploader 内存对象存储
type FakeUploader struct {
	mu      sync.Mutex
	Err     error
	BaseURL string
	Objects map[string][]byte
	Calls   int
}

// NewFakeUploader 创建内存对象存储
func NewFakeUploader() *FakeUploader {
	return &FakeUploader{BaseURL: "https://cdn.test/music-tracks", Objects: make(map[string][]byte)}
}

// Upload 保存对象并返回公开地址
func (f *FakeUploader) Upload(ctx context.Context, data []byte, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return "", f.Err
	}
	if len(data) == 0 {
		return "", errors.New("upload: empty payload")
	}
	f.Objects[path] = append([]byte(nil), data...)
	return f.BaseURL + "/" + path, nil
}

// Has 是否已上传
func (f *FakeUploader) Has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Objects[path]
	return ok
}

// FakeBook 随机书籍信息
func FakeBook() model.BookMetadata {
	book := gofakeit.Book()
	return model.BookMetadata{
		Title:       book.Title,
		Author:      book.Author,
		Category:    book.Genre,
		Description: gofakeit.Sentence(12),
	}
}

// FakeQuote 随机摘录
func FakeQuote() string {
	return gofakeit.Quote()
}
