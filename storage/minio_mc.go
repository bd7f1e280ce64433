package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"ReadingFM/logger"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	Journeys     int
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	ETag         string
}

// JourneyID 对象所属旅程，即路径第一段
func (o ObjectInfo) JourneyID() string {
	if i := strings.Index(o.Key, "/"); i > 0 {
		return o.Key[:i]
	}
	return ""
}

// ListObjects 递归列出前缀下的对象
func (s *MinioStore) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo
	journeys := make(map[string]struct{})

	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		info := ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
			ETag:         object.ETag,
		}
		if j := info.JourneyID(); j != "" {
			journeys[j] = struct{}{}
		}
		objects = append(objects, info)
	}
	stats.Journeys = len(journeys)

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, stats, nil
}

// DeletePrefix 删除前缀下的所有对象，返回删除数量
func (s *MinioStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("refusing to delete with empty prefix")
	}

	objects, _, err := s.ListObjects(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	go func() {
		defer close(objectsCh)
		for _, obj := range objects {
			objectsCh <- minio.ObjectInfo{Key: obj.Key}
		}
	}()

	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return 0, fmt.Errorf("删除对象 %s 失败: %w", rErr.ObjectName, rErr.Err)
		}
	}

	logger.Info("已删除对象", logger.String("prefix", prefix), logger.Int("count", len(objects)))
	return len(objects), nil
}

// GroupByJourney 按旅程分组，供命令行展示
func GroupByJourney(objects []ObjectInfo) map[string][]ObjectInfo {
	groups := make(map[string][]ObjectInfo)
	for _, obj := range objects {
		key := obj.JourneyID()
		if key == "" {
			key = "/"
		}
		groups[key] = append(groups[key], obj)
	}
	return groups
}

// TrackIDFromKey 从对象路径取出音轨ID
func TrackIDFromKey(key string) string {
	return strings.TrimSuffix(path.Base(key), path.Ext(key))
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
