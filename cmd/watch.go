package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ReadingFM/core/poller"
	"ReadingFM/model"

	"github.com/spf13/cobra"
)

var (
	watchBaseURL   string
	watchToken     string
	watchNoTrigger bool
	watchInterval  time.Duration
	watchMaxWait   time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <trackId>",
	Short: "触发音乐生成并轮询进度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := poller.NewController(poller.Config{
			BaseURL:      watchBaseURL,
			Token:        watchToken,
			PollInterval: watchInterval,
			MaxDuration:  watchMaxWait,
		})
		return runWatch(ctx, c, args[0], !watchNoTrigger, os.Stdout)
	},
}

// runWatch 轮询直到终态并输出进度
func runWatch(ctx context.Context, c *poller.Controller, trackID string, trigger bool, out io.Writer) error {
	interactive := isTerminal(out)
	lastPercent := -1.0
	noticed := false
	onProgress := func(p poller.Progress) {
		if p.LongWait && !noticed {
			noticed = true
			fmt.Fprintln(out, "\n音乐生成比平时慢，请继续等待...")
		}
		if p.Percent == lastPercent && !p.Done() {
			return
		}
		// 非终端输出时每 10% 打一行，避免日志里全是回车
		if !interactive && !p.Done() && int(p.Percent/10) == int(lastPercent/10) {
			lastPercent = p.Percent
			return
		}
		lastPercent = p.Percent
		if interactive {
			fmt.Fprintf(out, "\r[%-10s] %5.1f%%", p.Status, p.Percent)
		} else {
			fmt.Fprintf(out, "[%s] %.1f%%\n", p.Status, p.Percent)
		}
	}

	var (
		res *poller.Progress
		err error
	)
	if trigger {
		res, err = c.TriggerAndWatch(ctx, trackID, onProgress)
	} else {
		res, err = c.Watch(ctx, trackID, onProgress)
	}
	fmt.Fprintln(out)

	if err != nil {
		if errors.Is(err, poller.ErrTimeout) {
			fmt.Fprintf(out, "等待超时，音乐仍在 %s 状态，可稍后再次查看\n", res.Status)
		} else {
			fmt.Fprintln(out, "已停止轮询，服务端生成不受影响")
		}
		return err
	}

	// 终态后触发请求很快返回，等它结束再退出；超时或中断时直接退出，服务端生成不受影响
	c.WaitTriggers()

	switch res.Status {
	case model.TrackStatusCompleted:
		fmt.Fprintf(out, "生成完成: %s\n", res.FileURL)
		if res.Duration != nil {
			fmt.Fprintf(out, "时长: %d 秒\n", *res.Duration)
		}
	case model.TrackStatusError:
		fmt.Fprintf(out, "生成失败: %s\n", res.ErrorMessage)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchBaseURL, "url", "http://localhost:8080", "服务地址")
	watchCmd.Flags().StringVarP(&watchToken, "token", "t", os.Getenv("READINGFM_TOKEN"), "Bearer 令牌")
	watchCmd.Flags().BoolVar(&watchNoTrigger, "no-trigger", false, "只轮询，不触发生成")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "轮询间隔")
	watchCmd.Flags().DurationVar(&watchMaxWait, "max-wait", 6*time.Minute, "最长等待时间")

	watchCmd.Example = `  # 触发生成并显示进度
  readingfm watch 6f1c... -t $TOKEN

  # 只查看已有任务的进度
  readingfm watch 6f1c... --no-trigger`
}
