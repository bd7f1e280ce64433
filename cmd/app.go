package cmd

import (
	"context"
	"fmt"

	"ReadingFM/cache"
	"ReadingFM/config"
	"ReadingFM/core/generation"
	"ReadingFM/core/journey"
	"ReadingFM/core/prompt"
	"ReadingFM/core/render"
	"ReadingFM/db"
	"ReadingFM/logger"
	"ReadingFM/model"
	"ReadingFM/repository"
	"ReadingFM/storage"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// app 进程内共享的依赖，由 server 和 worker 子命令构建
type app struct {
	gdb       *gorm.DB
	redis     *redis.Client
	asynq     *asynq.Client
	inspector *asynq.Inspector

	tracks      repository.TrackRepository
	logs        repository.LogRepository
	statusCache *cache.TrackStatusCache
	journeys    *journey.Service
	worker      *generation.Worker
	dispatcher  *generation.Dispatcher
}

func asynqRedisOpt(c *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr(),
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// buildApp 连接数据库、Redis、MinIO，并组装业务组件
func buildApp(ctx context.Context, c *config.Config) (*app, error) {
	if err := c.Validate(
		config.RequireDatabase,
		config.RequireRedis,
		config.RequireStorage,
		config.RequirePromptService,
		config.RequireRenderService,
	); err != nil {
		return nil, err
	}

	a := &app{}
	var err error

	a.gdb, err = db.ConnectGormDB(c)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrateModels(a.gdb, model.AllModels()...); err != nil {
		a.close()
		return nil, err
	}

	a.redis, err = db.ConnectRedis(c)
	if err != nil {
		a.close()
		return nil, err
	}
	logger.Info("Redis连接成功", logger.String("addr", c.RedisAddr()))

	store, err := storage.NewMinioStore(c)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to prepare bucket: %w", err)
	}

	a.tracks = repository.NewGormTrackRepository(a.gdb)
	a.logs = repository.NewGormLogRepository(a.gdb)
	journeys := repository.NewGormJourneyRepository(a.gdb)
	emotions := repository.NewGormEmotionTagRepository(a.gdb)

	prompts := prompt.NewClient(prompt.Config{
		APIBaseURL:  c.OpenAIBaseURL,
		APIKey:      c.OpenAIAPIKey,
		Model:       c.OpenAIModel,
		Temperature: c.OpenAITemperature,
		Timeout:     c.OpenAITimeout,
	})
	renderer := render.NewClient(render.Config{
		APIURL:          c.MurekaAPIURL,
		APIKey:          c.MurekaAPIKey,
		Timeout:         c.MurekaTimeout,
		PollInterval:    c.MurekaPollInterval,
		MaxPollAttempts: c.MurekaMaxPollAttempts,
	})

	a.statusCache = cache.NewTrackStatusCache(a.redis, c.TrackStatusCacheTTL)
	a.journeys = journey.NewService(journeys, a.tracks, a.logs, emotions, prompts)
	a.worker = generation.NewWorker(a.tracks, a.logs, renderer, store, generation.Config{
		Deadline:    c.GenerationDeadline,
		MaxAttempts: c.GenerationMaxAttempts,
	}, generation.WithStatusCache(a.statusCache))

	a.asynq = asynq.NewClient(asynqRedisOpt(c))
	a.inspector = asynq.NewInspector(asynqRedisOpt(c))
	a.dispatcher = generation.NewDispatcher(a.asynq, a.inspector, c.GenerationQueue, c.GenerationDeadline)
	return a, nil
}

func (a *app) close() {
	if a.asynq != nil {
		if err := a.asynq.Close(); err != nil {
			logger.Warn("关闭任务队列客户端失败", logger.ErrorField(err))
		}
	}
	if a.inspector != nil {
		_ = a.inspector.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("关闭Redis连接失败", logger.ErrorField(err))
		}
	}
	if err := db.CloseGormDB(a.gdb); err != nil {
		logger.Warn("关闭数据库连接失败", logger.ErrorField(err))
	}
}
