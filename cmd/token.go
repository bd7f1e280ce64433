package cmd

import (
	"fmt"
	"time"

	"ReadingFM/config"
	"ReadingFM/server"

	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// 本地调试用，正式环境由上游认证服务签发
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发调试用的访问令牌",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.RequireAuth); err != nil {
			return err
		}
		tok, err := server.IssueToken(cfg.AuthJWTSecret, tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "用户ID")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "有效期")
	_ = tokenCmd.MarkFlagRequired("user")
}
