package server

import (
	"context"
	"net/http"

	"ReadingFM/logger"
	"ReadingFM/model"

	"github.com/gorilla/mux"
)

// JourneyService 旅程相关业务
type JourneyService interface {
	CreateJourney(ctx context.Context, userID string, req *model.CreateJourneyRequest) (*model.JourneyCreated, error)
	ListJourneys(ctx context.Context, userID, status, sort string) ([]*model.JourneySummary, error)
	GetJourney(ctx context.Context, journeyID, callerID string) (*model.JourneyDetail, error)
	ListLogs(ctx context.Context, journeyID, callerID string) ([]*model.ReadingLog, error)
	AddLog(ctx context.Context, journeyID, callerID string, req *model.AddLogRequest) (*model.LogCreated, error)
	CompleteJourney(ctx context.Context, journeyID, callerID string, req *model.CompleteJourneyRequest) (*model.JourneyCompleted, error)
	MusicStatus(ctx context.Context, journeyID, callerID string) ([]*model.LogMusicStatus, error)
	ListEmotionTags(ctx context.Context) ([]*model.EmotionTag, error)
}

func (s *Server) handleCreateJourney(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req model.CreateJourneyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.journeys.CreateJourney(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.enqueueIfAsync(r, created.Track)
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleListJourneys(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	q := r.URL.Query()
	journeys, err := s.journeys.ListJourneys(r.Context(), userID, q.Get("status"), q.Get("sort"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, journeys)
}

func (s *Server) handleGetJourney(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	detail, err := s.journeys.GetJourney(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	logs, err := s.journeys.ListLogs(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, logs)
}

func (s *Server) handleAddLog(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req model.AddLogRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.journeys.AddLog(r.Context(), mux.Vars(r)["id"], userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.enqueueIfAsync(r, created.Track)
	writeData(w, http.StatusCreated, created)
}

func (s *Server) handleCompleteJourney(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req model.CompleteJourneyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	completed, err := s.journeys.CompleteJourney(r.Context(), mux.Vars(r)["id"], userID, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.enqueueIfAsync(r, completed.Track)
	writeData(w, http.StatusOK, completed)
}

func (s *Server) handleMusicStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	statuses, err := s.journeys.MusicStatus(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, statuses)
}

func (s *Server) handleEmotionTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.journeys.ListEmotionTags(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tags)
}

// enqueueIfAsync 创建接口带 ?generate=async 时，顺带把新音乐提交到队列
func (s *Server) enqueueIfAsync(r *http.Request, track *model.MusicTrack) {
	if track == nil || s.dispatcher == nil || r.URL.Query().Get("generate") != "async" {
		return
	}
	if _, err := s.dispatcher.Enqueue(context.WithoutCancel(r.Context()), track.ID); err != nil {
		// 提交失败不影响创建结果，客户端仍可手动触发
		logger.Warn("提交生成任务失败", logger.TrackID(track.ID), logger.ErrorField(err))
	}
}
