package repository

import (
	"context"
	"errors"
	"time"

	"ReadingFM/model"

	"gorm.io/gorm"
)

// ErrTransitionRejected 条件更新未命中，说明状态已被其他流程改变
var ErrTransitionRejected = errors.New("track status transition rejected")

// TrackRepository 音乐生成任务数据访问接口
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.MusicTrack) error
	GetTrackByID(ctx context.Context, id string) (*model.MusicTrack, error)
	GetTracksByIDs(ctx context.Context, ids []string) ([]*model.MusicTrack, error)
	DeleteTrack(ctx context.Context, id string) error

	// 状态机
	MarkGenerating(ctx context.Context, id string, maxAttempts int, startedAt time.Time) (bool, error)
	SetRenderJobID(ctx context.Context, id, jobID string) error
	MarkCompleted(ctx context.Context, id, fileURL string, duration *int, fileSize int64) error
	MarkFailed(ctx context.Context, id, message string) error
	FailStaleGenerating(ctx context.Context, cutoff time.Time, message string) ([]string, error)
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 音乐仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// CreateTrack 以 pending 状态写入
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.MusicTrack) error {
	if track.Status == "" {
		track.Status = model.TrackStatusPending
	}
	return r.db.WithContext(ctx).Create(track).Error
}

// GetTrackByID 根据ID获取，不存在时返回 nil, nil
func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.MusicTrack, error) {
	var track model.MusicTrack
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &track, nil
}

// GetTracksByIDs 批量获取
func (r *gormTrackRepository) GetTracksByIDs(ctx context.Context, ids []string) ([]*model.MusicTrack, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tracks []*model.MusicTrack
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&tracks).Error
	return tracks, err
}

// DeleteTrack 删除记录，仅用于创建失败时的补偿
func (r *gormTrackRepository) DeleteTrack(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.MusicTrack{}).Error
}

// ========== 状态机 ==========

// MarkGenerating 条件更新 pending/error -> generating。
// 返回 false 表示已有其他调用在处理，或已超过重试上限。
func (r *gormTrackRepository) MarkGenerating(ctx context.Context, id string, maxAttempts int, startedAt time.Time) (bool, error) {
	query := r.db.WithContext(ctx).Model(&model.MusicTrack{}).
		Where("id = ? AND status IN ?", id, []model.TrackStatus{model.TrackStatusPending, model.TrackStatusError})
	if maxAttempts > 0 {
		query = query.Where("generation_attempts < ?", maxAttempts)
	}
	result := query.Updates(map[string]interface{}{
		"status":                model.TrackStatusGenerating,
		"generation_attempts":   gorm.Expr("generation_attempts + ?", 1),
		"generation_started_at": startedAt,
		"error_message":         nil,
	})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetRenderJobID 记录外部渲染任务ID
func (r *gormTrackRepository) SetRenderJobID(ctx context.Context, id, jobID string) error {
	return r.db.WithContext(ctx).Model(&model.MusicTrack{}).
		Where("id = ?", id).
		Update("render_job_id", jobID).Error
}

// MarkCompleted generating -> completed
func (r *gormTrackRepository) MarkCompleted(ctx context.Context, id, fileURL string, duration *int, fileSize int64) error {
	result := r.db.WithContext(ctx).Model(&model.MusicTrack{}).
		Where("id = ? AND status = ?", id, model.TrackStatusGenerating).
		Updates(map[string]interface{}{
			"status":        model.TrackStatusCompleted,
			"file_url":      fileURL,
			"duration":      duration,
			"file_size":     fileSize,
			"error_message": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransitionRejected
	}
	return nil
}

// MarkFailed generating -> error
func (r *gormTrackRepository) MarkFailed(ctx context.Context, id, message string) error {
	result := r.db.WithContext(ctx).Model(&model.MusicTrack{}).
		Where("id = ? AND status = ?", id, model.TrackStatusGenerating).
		Updates(map[string]interface{}{
			"status":        model.TrackStatusError,
			"error_message": message,
			"file_url":      "",
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransitionRejected
	}
	return nil
}

// FailStaleGenerating 将超时仍处于 generating 的任务置为 error，只返回实际被更新的任务ID
func (r *gormTrackRepository) FailStaleGenerating(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.MusicTrack{}).
		Where("status = ? AND generation_started_at < ?", model.TrackStatusGenerating, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// 逐条带状态条件更新，刚刚完成的任务不会被覆盖，也不计入结果
	var failed []string
	for _, id := range ids {
		result := r.db.WithContext(ctx).Model(&model.MusicTrack{}).
			Where("id = ? AND status = ?", id, model.TrackStatusGenerating).
			Updates(map[string]interface{}{
				"status":        model.TrackStatusError,
				"error_message": message,
			})
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			failed = append(failed, id)
		}
	}
	return failed, nil
}
