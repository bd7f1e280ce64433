package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"ReadingFM/config"
	"ReadingFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	audioContentType  = "audio/mpeg"
	audioCacheControl = "public, max-age=31536000"
	unknownJourney    = "unknown"
)

// MinioStore 音频对象存储
type MinioStore struct {
	client        *minio.Client
	bucket        string
	region        string
	publicBaseURL string
}

// NewMinioStore 根据配置创建 MinIO 客户端，不做任何网络请求
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	if cfg.MinioEndpoint == "" {
		return nil, errors.New("minio endpoint is empty")
	}
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	base := strings.TrimRight(cfg.MinioPublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.MinioUseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.MinioEndpoint, cfg.MinioBucket)
	}

	return &MinioStore{
		client:        client,
		bucket:        cfg.MinioBucket,
		region:        cfg.MinioRegion,
		publicBaseURL: base,
	}, nil
}

// Bucket 返回存储桶名称
func (s *MinioStore) Bucket() string {
	return s.bucket
}

// EnsureBucket 检查存储桶，不存在时创建并设置公共读策略
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		logger.Debug("存储桶已存在", logger.String("bucket", s.bucket))
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	if err := s.client.SetBucketPolicy(ctx, s.bucket, publicReadPolicy(s.bucket)); err != nil {
		return fmt.Errorf("设置存储桶策略失败: %w", err)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", s.bucket))
	return nil
}

// Upload 上传音频并返回公开访问地址
func (s *MinioStore) Upload(ctx context.Context, data []byte, objectPath string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("upload: empty payload")
	}
	objectPath = strings.TrimLeft(objectPath, "/")
	if objectPath == "" {
		return "", errors.New("upload: empty object path")
	}

	info, err := s.client.PutObject(ctx, s.bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  audioContentType,
		CacheControl: audioCacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("上传对象失败: %w", err)
	}

	logger.Info("音频上传成功",
		logger.String("bucket", s.bucket),
		logger.String("object", objectPath),
		logger.Int64("size", info.Size))
	return s.PublicURL(objectPath), nil
}

// PublicURL 对象的公开访问地址
func (s *MinioStore) PublicURL(objectPath string) string {
	segments := strings.Split(strings.TrimLeft(objectPath, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + strings.Join(segments, "/")
}

// TrackObjectPath 音轨对象路径: {journeyId}/{trackId}.mp3
func TrackObjectPath(journeyID, trackID string) string {
	if journeyID == "" {
		journeyID = unknownJourney
	}
	return fmt.Sprintf("%s/%s.mp3", journeyID, trackID)
}

func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": map[string]interface{}{"AWS": []string{"*"}},
				"Action":    []string{"s3:GetObject"},
				"Resource":  []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
