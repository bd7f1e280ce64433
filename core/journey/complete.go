package journey

import (
	"context"
	"fmt"

	"ReadingFM/core/apperr"
	"ReadingFM/core/prompt"
	"ReadingFM/logger"
	"ReadingFM/model"
	"ReadingFM/repository"
)

// CompleteJourney 完结旅程：用全部记录合成 vFinal 提示词，写入音乐和 vFinal 记录，最后把旅程置为 completed。
// 完结字段最后写入；该步失败时删除 vFinal 记录和音乐，旅程保持 reading，可以重试。
func (s *Service) CompleteJourney(ctx context.Context, journeyID, callerID string, req *model.CompleteJourneyRequest) (*model.JourneyCompleted, error) {
	journey, err := s.loadOwnedJourney(ctx, journeyID, callerID)
	if err != nil {
		return nil, err
	}
	if journey.Status == model.JourneyStatusCompleted {
		return nil, apperr.New(apperr.KindAlreadyCompleted, "journey is already completed")
	}
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	logs, err := s.logs.ListLogs(ctx, journeyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load reading logs", err)
	}
	if _, err := s.attachTracks(ctx, logs); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load music tracks", err)
	}
	s.attachEmotions(ctx, logs)

	prior := make([]prompt.Moment, 0, len(logs))
	for _, l := range logs {
		prior = append(prior, momentFromLog(l, true))
	}
	res, err := s.prompts.Synthesize(ctx, prompt.Request{
		Book:         journey.Book(),
		PriorContext: prior,
		Current: &prompt.Moment{
			Quote: req.OneLiner,
			Memo:  fmt.Sprintf("%s (rating %d/5)", req.Review, req.Rating),
		},
		Synthesis: true,
	})
	if err != nil {
		logger.Error("生成 vFinal 提示词失败", logger.JourneyID(journeyID), logger.ErrorField(err))
		return nil, apperr.Wrap(apperr.KindPromptGenerationFailed, "failed to generate final music prompt", err)
	}

	track := newPendingTrack(res)
	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		logger.Error("创建 vFinal 音乐记录失败", logger.JourneyID(journeyID), logger.ErrorField(err))
		return nil, apperr.Wrap(apperr.KindTrackCreationFailed, "failed to create music track", err)
	}
	deleteTrack := func(ctx context.Context) error {
		logger.Warn("回滚音乐记录", logger.TrackID(track.ID))
		return s.tracks.DeleteTrack(ctx, track.ID)
	}

	log := &model.ReadingLog{
		JourneyID:    journeyID,
		LogType:      model.LogTypeVFinal,
		Quote:        model.StrPtr(req.OneLiner),
		Memo:         model.StrPtr(req.Review),
		MusicPrompt:  model.StrPtr(track.Prompt),
		MusicTrackID: &track.ID,
		IsPublic:     req.IsPublic,
	}
	if err := s.insertNextVersion(ctx, log); err != nil {
		logger.Error("创建 vFinal 记录失败", logger.JourneyID(journeyID), logger.ErrorField(err))
		compensate(ctx, deleteTrack)
		return nil, apperr.Wrap(apperr.KindLogCreationFailed, "failed to create final reading log", err)
	}
	deleteLog := func(ctx context.Context) error {
		logger.Warn("回滚 vFinal 记录", logger.LogID(log.ID))
		return s.logs.DeleteLog(ctx, log.ID)
	}

	completion := repository.JourneyCompletion{
		Rating:         req.Rating,
		OneLiner:       req.OneLiner,
		Review:         req.Review,
		ReviewIsPublic: req.IsPublic,
		CompletedAt:    s.now(),
	}
	ok, err := s.journeys.MarkCompleted(ctx, journeyID, completion)
	if err != nil {
		logger.Error("更新旅程完结状态失败", logger.JourneyID(journeyID), logger.ErrorField(err))
		compensate(ctx, deleteLog, deleteTrack)
		return nil, apperr.Wrap(apperr.KindInternal, "failed to complete journey", err)
	}
	if !ok {
		// 并发完结，另一请求已经写入
		logger.Warn("旅程已被其他请求完结", logger.JourneyID(journeyID))
		compensate(ctx, deleteLog, deleteTrack)
		return nil, apperr.New(apperr.KindAlreadyCompleted, "journey is already completed")
	}

	journey.Status = model.JourneyStatusCompleted
	journey.Rating = &completion.Rating
	journey.OneLiner = &completion.OneLiner
	journey.Review = &completion.Review
	journey.ReviewIsPublic = completion.ReviewIsPublic
	journey.CompletedAt = &completion.CompletedAt
	log.MusicTrack = track

	logger.Info("旅程完结成功",
		logger.JourneyID(journeyID),
		logger.LogID(log.ID),
		logger.TrackID(track.ID),
		logger.Int("version", log.Version),
		logger.Int("priorLogs", len(logs)))

	return &model.JourneyCompleted{Journey: journey, Log: log, Track: track}, nil
}
