package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmotionTag 情绪标签
type EmotionTag struct {
	ID           string `json:"id" gorm:"primaryKey;size:36"`
	Name         string `json:"name" gorm:"size:50;uniqueIndex;not null"`
	IsPredefined bool   `json:"is_predefined"`
	UsageCount   int    `json:"usage_count" gorm:"not null"`
}

// TableName 指定表名
func (EmotionTag) TableName() string {
	return "emotion_tags"
}

// BeforeCreate 生成 UUID 主键
func (t *EmotionTag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// LogEmotion 记录与情绪标签的关联
type LogEmotion struct {
	ID           string `json:"id" gorm:"primaryKey;size:36"`
	LogID        string `json:"log_id" gorm:"size:36;index;not null"`
	EmotionTagID string `json:"emotion_tag_id" gorm:"size:36;index;not null"`
}

// TableName 指定表名
func (LogEmotion) TableName() string {
	return "log_emotions"
}

// BeforeCreate 生成 UUID 主键
func (e *LogEmotion) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// AllModels 需要自动迁移的模型
func AllModels() []interface{} {
	return []interface{}{
		&ReadingJourney{},
		&MusicTrack{},
		&ReadingLog{},
		&EmotionTag{},
		&LogEmotion{},
	}
}
