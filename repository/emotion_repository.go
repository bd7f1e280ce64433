package repository

import (
	"context"

	"ReadingFM/model"

	"gorm.io/gorm"
)

// EmotionTagRepository 情绪标签数据访问接口
type EmotionTagRepository interface {
	ListTags(ctx context.Context) ([]*model.EmotionTag, error)
	FindTagsByNames(ctx context.Context, names []string) ([]*model.EmotionTag, error)
	LinkLogEmotions(ctx context.Context, logID string, tagIDs []string) error
	ListEmotionNames(ctx context.Context, logIDs []string) (map[string][]string, error)
}

// gormEmotionTagRepository GORM 实现
type gormEmotionTagRepository struct {
	db *gorm.DB
}

// NewGormEmotionTagRepository 创建 GORM 情绪标签仓库
func NewGormEmotionTagRepository(db *gorm.DB) EmotionTagRepository {
	return &gormEmotionTagRepository{db: db}
}

// ListTags 预置标签在前，其余按使用次数排序
func (r *gormEmotionTagRepository) ListTags(ctx context.Context) ([]*model.EmotionTag, error) {
	var tags []*model.EmotionTag
	err := r.db.WithContext(ctx).
		Order("is_predefined DESC").
		Order("usage_count DESC").
		Find(&tags).Error
	return tags, err
}

// FindTagsByNames 按名称查找，不存在的名称直接忽略
func (r *gormEmotionTagRepository) FindTagsByNames(ctx context.Context, names []string) ([]*model.EmotionTag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []*model.EmotionTag
	err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&tags).Error
	return tags, err
}

// LinkLogEmotions 写入记录与标签的关联，并累加标签使用次数
func (r *gormEmotionTagRepository) LinkLogEmotions(ctx context.Context, logID string, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		links := make([]*model.LogEmotion, 0, len(tagIDs))
		for _, id := range tagIDs {
			links = append(links, &model.LogEmotion{LogID: logID, EmotionTagID: id})
		}
		if err := tx.Create(&links).Error; err != nil {
			return err
		}

		return tx.Model(&model.EmotionTag{}).
			Where("id IN ?", tagIDs).
			Update("usage_count", gorm.Expr("usage_count + ?", 1)).Error
	})
}

// ListEmotionNames 返回 logID -> 标签名称列表
func (r *gormEmotionTagRepository) ListEmotionNames(ctx context.Context, logIDs []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(logIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		LogID string
		Name  string
	}
	err := r.db.WithContext(ctx).
		Table("log_emotions").
		Select("log_emotions.log_id AS log_id, emotion_tags.name AS name").
		Joins("JOIN emotion_tags ON emotion_tags.id = log_emotions.emotion_tag_id").
		Where("log_emotions.log_id IN ?", logIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.LogID] = append(result[row.LogID], row.Name)
	}
	return result, nil
}
