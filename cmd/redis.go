package cmd

import (
	"context"
	"fmt"
	"time"

	"ReadingFM/config"
	"ReadingFM/db"
	"ReadingFM/logger"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。状态缓存和任务队列都依赖Redis。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.RequireRedis); err != nil {
			return err
		}
		fmt.Printf("Redis配置: %s, DB: %d\n", cfg.RedisAddr(), cfg.RedisDB)

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("关闭Redis连接时发生错误", logger.ErrorField(err))
			}
		}()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := db.CheckRedis(ctx, client); err != nil {
			return fmt.Errorf("Redis操作测试失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
