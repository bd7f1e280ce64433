package journey

import (
	"context"

	"ReadingFM/core/apperr"
	"ReadingFM/core/prompt"
	"ReadingFM/logger"
	"ReadingFM/model"
)

// 并发追加导致版本冲突时重新计数的次数
const maxVersionRetries = 2

// AddLog 追加一条 vN 记录。GenerateMusic 为 false 时不调用提示词服务，也不创建音乐。
func (s *Service) AddLog(ctx context.Context, journeyID, callerID string, req *model.AddLogRequest) (*model.LogCreated, error) {
	journey, err := s.loadOwnedJourney(ctx, journeyID, callerID)
	if err != nil {
		return nil, err
	}
	if journey.Status != model.JourneyStatusReading {
		return nil, apperr.New(apperr.KindInvalidState, "journey is not in reading status")
	}
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	var track *model.MusicTrack
	if req.ShouldGenerateMusic() {
		res, err := s.synthesizeIncremental(ctx, journey, req)
		if err != nil {
			logger.Error("生成 vN 提示词失败", logger.JourneyID(journeyID), logger.ErrorField(err))
			return nil, apperr.Wrap(apperr.KindPromptGenerationFailed, "failed to generate music prompt", err)
		}
		track = newPendingTrack(res)
		if err := s.tracks.CreateTrack(ctx, track); err != nil {
			logger.Error("创建音乐记录失败", logger.JourneyID(journeyID), logger.ErrorField(err))
			return nil, apperr.Wrap(apperr.KindTrackCreationFailed, "failed to create music track", err)
		}
	}

	log := &model.ReadingLog{
		JourneyID: journeyID,
		LogType:   model.LogTypeVN,
		Quote:     model.StrPtr(req.Quote),
		Memo:      model.StrPtr(req.Memo),
		IsPublic:  req.IsPublic,
	}
	if track != nil {
		log.MusicTrackID = &track.ID
		log.MusicPrompt = model.StrPtr(track.Prompt)
	}

	if track != nil {
		// 提示词调用期间旅程可能已被完结，写入记录前再确认一次。
		// 确认与写入之间仍有很小的窗口，由完结流程按记录数分配版本兜底。
		if err := s.ensureReading(ctx, journeyID); err != nil {
			compensate(ctx, func(ctx context.Context) error {
				logger.Warn("回滚音乐记录", logger.TrackID(track.ID))
				return s.tracks.DeleteTrack(ctx, track.ID)
			})
			return nil, err
		}
	}

	if err := s.insertNextVersion(ctx, log); err != nil {
		logger.Error("创建 vN 记录失败", logger.JourneyID(journeyID), logger.ErrorField(err))
		if track != nil {
			compensate(ctx, func(ctx context.Context) error {
				logger.Warn("回滚音乐记录", logger.TrackID(track.ID))
				return s.tracks.DeleteTrack(ctx, track.ID)
			})
		}
		return nil, apperr.Wrap(apperr.KindLogCreationFailed, "failed to create reading log", err)
	}
	log.MusicTrack = track
	log.Emotions = s.linkEmotions(ctx, log.ID, req.Emotions)

	if track != nil {
		logger.Info("记录创建成功", logger.JourneyID(journeyID), logger.LogID(log.ID), logger.TrackID(track.ID), logger.Int("version", log.Version))
	} else {
		logger.Info("记录创建成功（未生成音乐）", logger.JourneyID(journeyID), logger.LogID(log.ID), logger.Int("version", log.Version))
	}
	return &model.LogCreated{Log: log, Track: track}, nil
}

// ensureReading 重新读取旅程状态
func (s *Service) ensureReading(ctx context.Context, journeyID string) error {
	journey, err := s.journeys.GetJourneyByID(ctx, journeyID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to load journey", err)
	}
	if journey == nil {
		return apperr.New(apperr.KindNotFound, "journey not found")
	}
	if journey.Status != model.JourneyStatusReading {
		logger.Warn("旅程已完结，放弃追加记录", logger.JourneyID(journeyID))
		return apperr.New(apperr.KindInvalidState, "journey is not in reading status")
	}
	return nil
}

// synthesizeIncremental 用最近两条记录和上一首音乐的风格作为上下文
func (s *Service) synthesizeIncremental(ctx context.Context, journey *model.ReadingJourney, req *model.AddLogRequest) (*prompt.Result, error) {
	recent, err := s.logs.ListRecentLogs(ctx, journey.ID, recentContextSize)
	if err != nil {
		return nil, err
	}
	if _, err := s.attachTracks(ctx, recent); err != nil {
		return nil, err
	}

	prior := make([]prompt.Moment, 0, len(recent))
	for _, l := range recent {
		// 情绪标签不进入上下文
		prior = append(prior, momentFromLog(l, false))
	}
	return s.prompts.Synthesize(ctx, prompt.Request{
		Book:         journey.Book(),
		PriorContext: prior,
		Current:      &prompt.Moment{Quote: req.Quote, Memo: req.Memo, Emotions: req.Emotions},
	})
}

// insertNextVersion 以当前记录数作为版本号写入，版本冲突时重新计数
func (s *Service) insertNextVersion(ctx context.Context, log *model.ReadingLog) error {
	var err error
	for attempt := 0; attempt <= maxVersionRetries; attempt++ {
		var count int64
		count, err = s.logs.CountLogs(ctx, log.JourneyID)
		if err != nil {
			return err
		}
		log.Version = int(count)
		if log.LogType != model.LogTypeVFinal {
			log.LogType = model.LogTypeForVersion(log.Version)
		}
		err = s.logs.CreateLog(ctx, log)
		if err == nil || !isVersionConflict(err) {
			return err
		}
		logger.Warn("记录版本冲突，重新计数", logger.JourneyID(log.JourneyID), logger.Int("version", log.Version))
	}
	return err
}

// linkEmotions 关联情绪标签，未知名称直接忽略，失败不影响主流程
func (s *Service) linkEmotions(ctx context.Context, logID string, names []string) []string {
	if len(names) == 0 {
		return nil
	}
	tags, err := s.emotions.FindTagsByNames(ctx, dedupe(names))
	if err != nil {
		logger.Warn("查询情绪标签失败", logger.LogID(logID), logger.ErrorField(err))
		return nil
	}
	if len(tags) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tags))
	linked := make([]string, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
		linked = append(linked, t.Name)
	}
	if err := s.emotions.LinkLogEmotions(ctx, logID, ids); err != nil {
		logger.Warn("关联情绪标签失败", logger.LogID(logID), logger.ErrorField(err))
		return nil
	}
	return linked
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
