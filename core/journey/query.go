package journey

import (
	"context"

	"ReadingFM/core/apperr"
	"ReadingFM/model"
	"ReadingFM/repository"
)

// 旅程列表的筛选和排序参数
const (
	StatusFilterAll = "all"
	SortLatest      = "latest"
	SortOldest      = "oldest"
)

// ListJourneys 用户的旅程列表。status 为 reading|completed|all，sort 为 latest|oldest（按开始时间），空值取默认。
func (s *Service) ListJourneys(ctx context.Context, userID, status, sort string) ([]*model.JourneySummary, error) {
	var filter repository.JourneyFilter
	switch status {
	case "", StatusFilterAll:
	case string(model.JourneyStatusReading), string(model.JourneyStatusCompleted):
		filter.Status = model.JourneyStatus(status)
	default:
		return nil, apperr.New(apperr.KindValidation, "status must be one of reading, completed, all")
	}
	switch sort {
	case "", SortLatest:
	case SortOldest:
		filter.OldestFirst = true
	default:
		return nil, apperr.New(apperr.KindValidation, "sort must be one of latest, oldest")
	}

	journeys, err := s.journeys.ListJourneysByUser(ctx, userID, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load journeys", err)
	}
	out := make([]*model.JourneySummary, 0, len(journeys))
	if len(journeys) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(journeys))
	for _, j := range journeys {
		ids = append(ids, j.ID)
	}
	counts, err := s.logs.CountByJourneys(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to count reading logs", err)
	}

	for _, j := range journeys {
		author := j.BookAuthor
		if author == "" {
			author = "Unknown"
		}
		c := counts[j.ID]
		out = append(out, &model.JourneySummary{
			ID:               j.ID,
			BookTitle:        j.BookTitle,
			BookAuthor:       author,
			BookCoverURL:     j.BookCoverURL,
			Status:           j.Status,
			LogsCount:        c.Logs,
			MusicTracksCount: c.Tracks,
			StartedAt:        j.StartedAt,
			CompletedAt:      j.CompletedAt,
			Rating:           j.Rating,
		})
	}
	return out, nil
}

// GetJourney 旅程详情及全部记录
func (s *Service) GetJourney(ctx context.Context, journeyID, callerID string) (*model.JourneyDetail, error) {
	journey, err := s.loadOwnedJourney(ctx, journeyID, callerID)
	if err != nil {
		return nil, err
	}
	logs, err := s.listLogs(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	return &model.JourneyDetail{Journey: journey, Logs: logs}, nil
}

// ListLogs 按版本升序返回记录，附带音乐和情绪标签
func (s *Service) ListLogs(ctx context.Context, journeyID, callerID string) ([]*model.ReadingLog, error) {
	if _, err := s.loadOwnedJourney(ctx, journeyID, callerID); err != nil {
		return nil, err
	}
	return s.listLogs(ctx, journeyID)
}

func (s *Service) listLogs(ctx context.Context, journeyID string) ([]*model.ReadingLog, error) {
	logs, err := s.logs.ListLogs(ctx, journeyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load reading logs", err)
	}
	if _, err := s.attachTracks(ctx, logs); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load music tracks", err)
	}
	s.attachEmotions(ctx, logs)
	if logs == nil {
		logs = []*model.ReadingLog{}
	}
	return logs, nil
}

// MusicStatus 旅程内所有音乐的轻量状态
func (s *Service) MusicStatus(ctx context.Context, journeyID, callerID string) ([]*model.LogMusicStatus, error) {
	if _, err := s.loadOwnedJourney(ctx, journeyID, callerID); err != nil {
		return nil, err
	}
	logs, err := s.logs.ListLogs(ctx, journeyID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load reading logs", err)
	}
	tracks, err := s.attachTracks(ctx, logs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load music tracks", err)
	}

	out := make([]*model.LogMusicStatus, 0, len(logs))
	for _, l := range logs {
		item := &model.LogMusicStatus{LogID: l.ID, Version: l.Version, LogType: l.LogType}
		if l.MusicTrackID != nil {
			if t, ok := tracks[*l.MusicTrackID]; ok {
				item.Track = &model.TrackStatusView{
					ID:        t.ID,
					Status:    t.Status,
					FileURL:   t.FileURL,
					CreatedAt: t.CreatedAt,
				}
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// ListEmotionTags 情绪标签列表，预置标签在前
func (s *Service) ListEmotionTags(ctx context.Context) ([]*model.EmotionTag, error) {
	tags, err := s.emotions.ListTags(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load emotion tags", err)
	}
	if tags == nil {
		tags = []*model.EmotionTag{}
	}
	return tags, nil
}
