package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ReadingFM/logger"
	"ReadingFM/model"

	"github.com/go-redis/redis/v8"
)

const (
	trackStatusKeyPrefix = "readingfm:track:"
	defaultStatusTTL     = 10 * time.Second
	// 终态不会再变化，可以缓存更久
	terminalTTLFactor = 30
)

// TrackStatusCache 音乐状态读缓存，给轮询接口减压。所有方法在 client 为 nil 时都是空操作。
type TrackStatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrackStatusCache 创建状态缓存
func NewTrackStatusCache(client *redis.Client, ttl time.Duration) *TrackStatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &TrackStatusCache{client: client, ttl: ttl}
}

// TrackStatusKey 根据音乐ID生成Redis键
func TrackStatusKey(trackID string) string {
	return trackStatusKeyPrefix + trackID
}

// Get 读取缓存，未命中或 Redis 异常时返回 nil, nil，由调用方回源数据库
func (c *TrackStatusCache) Get(ctx context.Context, trackID string) (*model.MusicTrack, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, TrackStatusKey(trackID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logger.Warn("读取音乐状态缓存失败", logger.TrackID(trackID), logger.ErrorField(err))
		return nil, nil
	}

	var track model.MusicTrack
	if err := json.Unmarshal(data, &track); err != nil {
		logger.Warn("音乐状态缓存数据损坏，已丢弃", logger.TrackID(trackID), logger.ErrorField(err))
		_ = c.client.Del(ctx, TrackStatusKey(trackID)).Err()
		return nil, nil
	}
	return &track, nil
}

// Set 写入缓存
func (c *TrackStatusCache) Set(ctx context.Context, track *model.MusicTrack) error {
	if c == nil || c.client == nil || track == nil {
		return nil
	}
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}

	ttl := c.ttl
	if track.Status.IsTerminal() {
		ttl = c.ttl * terminalTTLFactor
	}
	if err := c.client.Set(ctx, TrackStatusKey(track.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set track cache: %w", err)
	}
	return nil
}

// Invalidate 状态变化后删除缓存
func (c *TrackStatusCache) Invalidate(ctx context.Context, trackIDs ...string) error {
	if c == nil || c.client == nil || len(trackIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(trackIDs))
	for _, id := range trackIDs {
		keys = append(keys, TrackStatusKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate track cache: %w", err)
	}
	return nil
}
