package server

import (
	"context"
	"net/http"
	"strconv"

	"ReadingFM/core/apperr"
	"ReadingFM/logger"
	"ReadingFM/model"

	"github.com/gorilla/mux"
)

// TrackGenerator 同步执行一次生成
type TrackGenerator interface {
	GenerateTrack(ctx context.Context, trackID string) (*model.GenerateResult, error)
}

// TaskDispatcher 把生成任务提交到队列
type TaskDispatcher interface {
	Enqueue(ctx context.Context, trackID string) (bool, error)
}

// TrackReader 读取音乐记录
type TrackReader interface {
	GetTrackByID(ctx context.Context, id string) (*model.MusicTrack, error)
}

// TrackStatusCache 音乐状态读缓存
type TrackStatusCache interface {
	Get(ctx context.Context, trackID string) (*model.MusicTrack, error)
	Set(ctx context.Context, track *model.MusicTrack) error
}

// handleGetTrack 只读查询，供轮询使用。先查缓存，未命中再查库，已完成的音乐回填缓存。
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	if s.cache != nil {
		if cached, err := s.cache.Get(r.Context(), trackID); err == nil && cached != nil {
			writeData(w, http.StatusOK, cached)
			return
		}
	}

	track, err := s.tracks.GetTrackByID(r.Context(), trackID)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "failed to load music track", err))
		return
	}
	if track == nil {
		writeError(w, r, apperr.New(apperr.KindNotFound, "Music track not found"))
		return
	}
	// 只回填 completed。其他状态仍会变化，读库与回填之间 Worker 的失效会被覆盖。
	if s.cache != nil && track.Status == model.TrackStatusCompleted {
		if err := s.cache.Set(r.Context(), track); err != nil {
			logger.Debug("写入音乐状态缓存失败", logger.TrackID(trackID), logger.ErrorField(err))
		}
	}
	writeData(w, http.StatusOK, track)
}

// handleGenerateTrack 默认同步执行生成并返回终态；?async=true 时提交到队列并立即返回 202
func (s *Server) handleGenerateTrack(w http.ResponseWriter, r *http.Request) {
	trackID := mux.Vars(r)["id"]

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.enqueueGeneration(w, r, trackID)
		return
	}

	logger.Info("收到同步生成请求", logger.TrackID(trackID))
	res, err := s.generator.GenerateTrack(r.Context(), trackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) enqueueGeneration(w http.ResponseWriter, r *http.Request, trackID string) {
	if s.dispatcher == nil {
		writeFailure(w, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "generation queue is not configured")
		return
	}

	track, err := s.tracks.GetTrackByID(r.Context(), trackID)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "failed to load music track", err))
		return
	}
	if track == nil {
		writeError(w, r, apperr.New(apperr.KindNotFound, "Music track not found"))
		return
	}
	if track.Status == model.TrackStatusCompleted {
		writeData(w, http.StatusOK, model.ResultFromTrack(track, "Music already generated"))
		return
	}

	queued, err := s.dispatcher.Enqueue(r.Context(), trackID)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.KindInternal, "failed to enqueue generation", err))
		return
	}
	message := "Music generation queued"
	if !queued {
		message = "Music generation already queued"
	}
	writeData(w, http.StatusAccepted, model.ResultFromTrack(track, message))
}
