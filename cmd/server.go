package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ReadingFM/config"
	"ReadingFM/core/generation"
	"ReadingFM/logger"
	"ReadingFM/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serverWithSupervisor bool

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动HTTP服务",
	Long:  `启动阅读旅程 HTTP 服务。同步生成接口在本进程内执行，异步生成提交到任务队列由 worker 处理。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.RequireAuth); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		srv := server.New(server.Deps{
			Journeys:     a.journeys,
			Generator:    a.worker,
			Tracks:       a.tracks,
			Dispatcher:   a.dispatcher,
			Cache:        a.statusCache,
			JWTSecret:    cfg.AuthJWTSecret,
			WriteTimeout: cfg.GenerationDeadline + cfg.GenerationDeadline/5,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(gctx, ":"+cfg.ServerPort)
		})
		if serverWithSupervisor {
			supervisor := generation.NewSupervisor(a.tracks, a.statusCache, cfg.SupervisorInterval, cfg.GenerationDeadline)
			g.Go(func() error {
				return supervisor.Run(gctx)
			})
		}

		if err := g.Wait(); err != nil && err != context.Canceled {
			logger.Error("服务异常退出", logger.ErrorField(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().BoolVar(&serverWithSupervisor, "supervisor", true, "同时运行超时任务巡检")
}
