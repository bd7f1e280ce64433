package cmd

import (
	"fmt"
	"sort"

	"ReadingFM/config"
	"ReadingFM/storage"

	"github.com/spf13/cobra"
)

var (
	minioJourney string
	minioStats   bool
	minioDelete  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO音乐文件管理",
	Long:  `查看和管理存储桶中的生成音乐，按旅程分组列出文件、查看统计信息，或删除某个旅程的全部音乐。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.RequireStorage); err != nil {
			return err
		}
		ctx := cmd.Context()

		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		store, err := storage.NewMinioStore(cfg)
		if err != nil {
			return err
		}

		prefix := ""
		if minioJourney != "" {
			prefix = minioJourney + "/"
		}

		if minioDelete {
			if prefix == "" {
				return fmt.Errorf("删除操作需要指定旅程ID (--journey)")
			}
			n, err := store.DeletePrefix(ctx, prefix)
			if err != nil {
				return fmt.Errorf("删除失败: %w", err)
			}
			fmt.Printf("已删除 %d 个文件 (前缀: %s)\n", n, prefix)
			return nil
		}

		objects, stats, err := store.ListObjects(ctx, prefix)
		if err != nil {
			return fmt.Errorf("列出文件失败: %w", err)
		}

		if !minioStats {
			groups := storage.GroupByJourney(objects)
			journeys := make([]string, 0, len(groups))
			for j := range groups {
				journeys = append(journeys, j)
			}
			sort.Strings(journeys)
			for _, j := range journeys {
				rows := make([][]string, 0, len(groups[j]))
				for _, obj := range groups[j] {
					rows = append(rows, []string{
						storage.TrackIDFromKey(obj.Key),
						storage.FormatSize(obj.Size),
						obj.LastModified.Format("2006-01-02 15:04:05"),
					})
				}
				fmt.Printf("\n旅程 %s\n", j)
				fmt.Println(renderTable([]string{"音乐ID", "大小", "更新时间"}, rows, 1))
			}
		}

		fmt.Printf("\n文件总数: %d\n", stats.TotalObjects)
		fmt.Printf("总大小: %s\n", storage.FormatSize(stats.TotalSize))
		fmt.Printf("旅程数: %d\n", stats.Journeys)
		if !stats.LastModified.IsZero() {
			fmt.Printf("最近更新: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioJourney, "journey", "j", "", "只操作指定旅程的音乐")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定旅程的全部音乐")

	minioCmd.Example = `  # 按旅程列出所有音乐
  readingfm minio

  # 查看某个旅程的音乐
  readingfm minio -j 3b2e...

  # 显示统计信息
  readingfm minio -s

  # 删除某个旅程的全部音乐
  readingfm minio -d -j 3b2e...`
}
