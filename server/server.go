package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ReadingFM/logger"

	"github.com/gorilla/mux"
)

// Deps HTTP 层依赖。Dispatcher 和 Cache 可以为空。
type Deps struct {
	Journeys   JourneyService
	Generator  TrackGenerator
	Tracks     TrackReader
	Dispatcher TaskDispatcher
	Cache      TrackStatusCache
	JWTSecret  string
	// WriteTimeout 需要覆盖同步生成的最长耗时
	WriteTimeout time.Duration
}

// Server 阅读旅程 HTTP 服务
type Server struct {
	journeys     JourneyService
	generator    TrackGenerator
	tracks       TrackReader
	dispatcher   TaskDispatcher
	cache        TrackStatusCache
	jwtSecret    string
	writeTimeout time.Duration
	handler      http.Handler
}

// New 创建服务并注册路由
func New(deps Deps) *Server {
	s := &Server{
		journeys:     deps.Journeys,
		generator:    deps.Generator,
		tracks:       deps.Tracks,
		dispatcher:   deps.Dispatcher,
		cache:        deps.Cache,
		jwtSecret:    deps.JWTSecret,
		writeTimeout: deps.WriteTimeout,
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 6 * time.Minute
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	router := mux.NewRouter()
	router.Use(accessLogMiddleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/emotion-tags", s.handleEmotionTags).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(AuthMiddleware(s.jwtSecret))

	// 阅读旅程
	authed.HandleFunc("/journeys", s.handleListJourneys).Methods(http.MethodGet)
	authed.HandleFunc("/journeys", s.handleCreateJourney).Methods(http.MethodPost)
	authed.HandleFunc("/journeys/{id}", s.handleGetJourney).Methods(http.MethodGet)
	authed.HandleFunc("/journeys/{id}/logs", s.handleListLogs).Methods(http.MethodGet)
	authed.HandleFunc("/journeys/{id}/logs", s.handleAddLog).Methods(http.MethodPost)
	authed.HandleFunc("/journeys/{id}/complete", s.handleCompleteJourney).Methods(http.MethodPost)
	authed.HandleFunc("/journeys/{id}/music-status", s.handleMusicStatus).Methods(http.MethodGet)

	// 音乐生成
	authed.HandleFunc("/tracks/{id}", s.handleGetTrack).Methods(http.MethodGet)
	authed.HandleFunc("/tracks/{id}/generate", s.handleGenerateTrack).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	// 预检请求匹配不到带方法限制的路由，CORS 需包在路由外层
	s.handler = corsMiddleware(router)
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run 启动监听，ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP服务启动", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("正在关闭HTTP服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP服务已停止")
	return nil
}
