package repository

import (
	"context"
	"errors"
	"time"

	"ReadingFM/model"

	"gorm.io/gorm"
)

// JourneyRepository 阅读旅程数据访问接口
type JourneyRepository interface {
	CreateJourney(ctx context.Context, journey *model.ReadingJourney) error
	GetJourneyByID(ctx context.Context, id string) (*model.ReadingJourney, error)
	DeleteJourney(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, completion JourneyCompletion) (bool, error)
	ListJourneysByUser(ctx context.Context, userID string, filter JourneyFilter) ([]*model.ReadingJourney, error)
}

// JourneyFilter 旅程列表条件，Status 为空表示全部
type JourneyFilter struct {
	Status      model.JourneyStatus
	OldestFirst bool
}

// JourneyCompletion 完成旅程时写入的字段
type JourneyCompletion struct {
	Rating         int
	OneLiner       string
	Review         string
	ReviewIsPublic bool
	CompletedAt    time.Time
}

// gormJourneyRepository GORM 实现
type gormJourneyRepository struct {
	db *gorm.DB
}

// NewGormJourneyRepository 创建 GORM 旅程仓库
func NewGormJourneyRepository(db *gorm.DB) JourneyRepository {
	return &gormJourneyRepository{db: db}
}

// CreateJourney 创建旅程
func (r *gormJourneyRepository) CreateJourney(ctx context.Context, journey *model.ReadingJourney) error {
	return r.db.WithContext(ctx).Create(journey).Error
}

// GetJourneyByID 根据ID获取，不存在时返回 nil, nil
func (r *gormJourneyRepository) GetJourneyByID(ctx context.Context, id string) (*model.ReadingJourney, error) {
	var journey model.ReadingJourney
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&journey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &journey, nil
}

// DeleteJourney 删除旅程，仅用于创建失败时的补偿
func (r *gormJourneyRepository) DeleteJourney(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ReadingJourney{}).Error
}

// MarkCompleted 条件更新 reading -> completed，返回 false 表示旅程已不是 reading 状态
func (r *gormJourneyRepository) MarkCompleted(ctx context.Context, id string, c JourneyCompletion) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.ReadingJourney{}).
		Where("id = ? AND status = ?", id, model.JourneyStatusReading).
		Updates(map[string]interface{}{
			"status":           model.JourneyStatusCompleted,
			"rating":           c.Rating,
			"one_liner":        c.OneLiner,
			"review":           c.Review,
			"review_is_public": c.ReviewIsPublic,
			"completed_at":     c.CompletedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListJourneysByUser 用户的旅程列表，按开始时间排序
func (r *gormJourneyRepository) ListJourneysByUser(ctx context.Context, userID string, filter JourneyFilter) ([]*model.ReadingJourney, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OldestFirst {
		query = query.Order("started_at ASC")
	} else {
		query = query.Order("started_at DESC")
	}

	var journeys []*model.ReadingJourney
	err := query.Find(&journeys).Error
	return journeys, err
}
