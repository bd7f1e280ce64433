package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ReadingFM/core/generation"
	"ReadingFM/logger"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动音乐生成 worker",
	Long:  `消费任务队列中的音乐生成任务，并定期把超时仍在生成中的音乐置为失败。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		srv := asynq.NewServer(asynqRedisOpt(cfg), asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				cfg.GenerationQueue: 1,
			},
			ShutdownTimeout: cfg.GenerationDeadline,
		})
		mux := asynq.NewServeMux()
		generation.NewTaskHandler(a.worker).Register(mux)

		supervisor := generation.NewSupervisor(a.tracks, a.statusCache, cfg.SupervisorInterval, cfg.GenerationDeadline)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(mux); err != nil {
				return err
			}
			logger.Info("音乐生成 worker 已启动",
				logger.String("queue", cfg.GenerationQueue),
				logger.Int("concurrency", cfg.WorkerConcurrency))
			<-gctx.Done()
			srv.Shutdown()
			logger.Info("音乐生成 worker 已停止")
			return nil
		})
		g.Go(func() error {
			return supervisor.Run(gctx)
		})

		if err := g.Wait(); err != nil && err != context.Canceled {
			logger.Error("worker 异常退出", logger.ErrorField(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
