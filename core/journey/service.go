package journey

import (
	"context"
	"errors"
	"time"

	"ReadingFM/core/apperr"
	"ReadingFM/core/prompt"
	"ReadingFM/logger"
	"ReadingFM/model"
	"ReadingFM/repository"
)

// 增量记录只取最近两条作为上下文
const recentContextSize = 2

// PromptSynthesizer 提示词生成服务
type PromptSynthesizer interface {
	Synthesize(ctx context.Context, req prompt.Request) (*prompt.Result, error)
}

// Service 阅读旅程业务逻辑：创建、增量记录、完结，以及只读查询
type Service struct {
	journeys repository.JourneyRepository
	tracks   repository.TrackRepository
	logs     repository.LogRepository
	emotions repository.EmotionTagRepository
	prompts  PromptSynthesizer
	now      func() time.Time
}

// Option 可选配置
type Option func(*Service)

// WithClock 替换时间源
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 创建旅程服务
func NewService(
	journeys repository.JourneyRepository,
	tracks repository.TrackRepository,
	logs repository.LogRepository,
	emotions repository.EmotionTagRepository,
	prompts PromptSynthesizer,
	opts ...Option,
) *Service {
	s := &Service{
		journeys: journeys,
		tracks:   tracks,
		logs:     logs,
		emotions: emotions,
		prompts:  prompts,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// loadOwnedJourney 读取旅程并校验所有者
func (s *Service) loadOwnedJourney(ctx context.Context, journeyID, callerID string) (*model.ReadingJourney, error) {
	journey, err := s.journeys.GetJourneyByID(ctx, journeyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load journey", err)
	}
	if journey == nil {
		return nil, apperr.New(apperr.KindNotFound, "journey not found")
	}
	if journey.UserID != callerID {
		return nil, apperr.New(apperr.KindForbidden, "journey belongs to another user")
	}
	return journey, nil
}

// newPendingTrack 根据提示词结果构造待生成的音乐记录
func newPendingTrack(res *prompt.Result) *model.MusicTrack {
	tempo := res.TempoBPM()
	return &model.MusicTrack{
		Prompt:      res.Prompt,
		Genre:       model.StrPtr(res.Genre),
		Mood:        model.StrPtr(res.Mood),
		Tempo:       &tempo,
		Description: res.Description,
		Status:      model.TrackStatusPending,
	}
}

// attachTracks 为记录填充音乐信息，返回 trackID -> track
func (s *Service) attachTracks(ctx context.Context, logs []*model.ReadingLog) (map[string]*model.MusicTrack, error) {
	var ids []string
	for _, l := range logs {
		if l.MusicTrackID != nil {
			ids = append(ids, *l.MusicTrackID)
		}
	}
	byID := make(map[string]*model.MusicTrack, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	tracks, err := s.tracks.GetTracksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range tracks {
		byID[t.ID] = t
	}
	for _, l := range logs {
		if l.MusicTrackID != nil {
			l.MusicTrack = byID[*l.MusicTrackID]
		}
	}
	return byID, nil
}

// attachEmotions 为记录填充情绪标签名称，失败时只记录日志
func (s *Service) attachEmotions(ctx context.Context, logs []*model.ReadingLog) {
	if len(logs) == 0 {
		return
	}
	ids := make([]string, 0, len(logs))
	for _, l := range logs {
		ids = append(ids, l.ID)
	}
	names, err := s.emotions.ListEmotionNames(ctx, ids)
	if err != nil {
		logger.Warn("读取情绪标签失败", logger.ErrorField(err))
		return
	}
	for _, l := range logs {
		l.Emotions = names[l.ID]
	}
}

// momentFromLog 把记录转换为提示词上下文
func momentFromLog(l *model.ReadingLog, withEmotions bool) prompt.Moment {
	m := prompt.Moment{
		Quote: model.StrVal(l.Quote),
		Memo:  model.StrVal(l.Memo),
	}
	if withEmotions {
		m.Emotions = l.Emotions
	}
	if t := l.MusicTrack; t != nil {
		m.Genre = model.StrVal(t.Genre)
		m.Mood = model.StrVal(t.Mood)
		if t.Tempo != nil {
			m.Tempo = *t.Tempo
		}
	}
	return m
}

// compensate 按逆序执行补偿步骤。补偿失败只记录日志，不覆盖原始错误。
func compensate(ctx context.Context, steps ...func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	for _, step := range steps {
		if err := step(ctx); err != nil {
			logger.Error("补偿操作失败", logger.ErrorField(err))
		}
	}
}

func isVersionConflict(err error) bool {
	return errors.Is(err, repository.ErrVersionConflict)
}
