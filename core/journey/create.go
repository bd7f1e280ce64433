package journey

import (
	"context"

	"ReadingFM/core/apperr"
	"ReadingFM/core/prompt"
	"ReadingFM/logger"
	"ReadingFM/model"
)

// CreateJourney 创建旅程及其 v0 记录和待生成音乐。
// 任一步失败时按逆序删除已写入的数据，调用方不会看到残留的旅程。
// 这里不会触发音乐生成，由调用方随后提交生成任务。
func (s *Service) CreateJourney(ctx context.Context, userID string, req *model.CreateJourneyRequest) (*model.JourneyCreated, error) {
	if err := req.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	journey := model.NewReadingJourney(userID, req.BookMetadata, s.now())
	if err := s.journeys.CreateJourney(ctx, journey); err != nil {
		logger.Error("创建旅程失败", logger.String("userId", userID), logger.ErrorField(err))
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create journey", err)
	}
	deleteJourney := func(ctx context.Context) error {
		logger.Warn("回滚旅程", logger.JourneyID(journey.ID))
		return s.journeys.DeleteJourney(ctx, journey.ID)
	}

	res, err := s.prompts.Synthesize(ctx, prompt.Request{Book: journey.Book()})
	if err != nil {
		logger.Error("生成 v0 提示词失败", logger.JourneyID(journey.ID), logger.ErrorField(err))
		compensate(ctx, deleteJourney)
		return nil, apperr.Wrap(apperr.KindPromptGenerationFailed, "failed to generate music prompt", err)
	}

	track := newPendingTrack(res)
	if err := s.tracks.CreateTrack(ctx, track); err != nil {
		logger.Error("创建音乐记录失败", logger.JourneyID(journey.ID), logger.ErrorField(err))
		compensate(ctx, deleteJourney)
		return nil, apperr.Wrap(apperr.KindTrackCreationFailed, "failed to create music track", err)
	}
	deleteTrack := func(ctx context.Context) error {
		logger.Warn("回滚音乐记录", logger.TrackID(track.ID))
		return s.tracks.DeleteTrack(ctx, track.ID)
	}

	log := &model.ReadingLog{
		JourneyID:    journey.ID,
		LogType:      model.LogTypeV0,
		Version:      0,
		MusicPrompt:  model.StrPtr(track.Prompt),
		MusicTrackID: &track.ID,
		IsPublic:     false,
	}
	if err := s.logs.CreateLog(ctx, log); err != nil {
		logger.Error("创建 v0 记录失败", logger.JourneyID(journey.ID), logger.TrackID(track.ID), logger.ErrorField(err))
		compensate(ctx, deleteTrack, deleteJourney)
		return nil, apperr.Wrap(apperr.KindLogCreationFailed, "failed to create reading log", err)
	}
	log.MusicTrack = track

	logger.Info("旅程创建成功",
		logger.JourneyID(journey.ID),
		logger.TrackID(track.ID),
		logger.LogID(log.ID),
		logger.String("bookTitle", journey.BookTitle))

	return &model.JourneyCreated{Journey: journey, Log: log, Track: track}, nil
}
