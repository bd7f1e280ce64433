package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackStatus 音乐生成状态
type TrackStatus string

const (
	TrackStatusPending    TrackStatus = "pending"
	TrackStatusGenerating TrackStatus = "generating"
	TrackStatusCompleted  TrackStatus = "completed"
	TrackStatusError      TrackStatus = "error"
)

// IsTerminal 是否为终态
func (s TrackStatus) IsTerminal() bool {
	return s == TrackStatusCompleted || s == TrackStatusError
}

// MusicTrack 一次音乐生成任务。
// file_url 仅在 completed 时非空，error_message 仅在 error 时非空。
type MusicTrack struct {
	ID                  string      `json:"id" gorm:"primaryKey;size:36"`
	Prompt              string      `json:"prompt" gorm:"type:text;not null"`
	Genre               *string     `json:"genre" gorm:"size:100"`
	Mood                *string     `json:"mood" gorm:"size:100"`
	Tempo               *int        `json:"tempo"`
	Description         string      `json:"description" gorm:"type:text"`
	FileURL             string      `json:"file_url" gorm:"size:512;not null"`
	Status              TrackStatus `json:"status" gorm:"size:20;not null;index"`
	Duration            *int        `json:"duration"` // 秒
	FileSize            *int64      `json:"file_size"`
	ErrorMessage        *string     `json:"error_message" gorm:"type:text"`
	RenderJobID         string      `json:"render_job_id,omitempty" gorm:"size:128"`
	GenerationAttempts  int         `json:"generation_attempts" gorm:"not null"`
	GenerationStartedAt *time.Time  `json:"generation_started_at,omitempty" gorm:"index"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// TableName 指定表名
func (MusicTrack) TableName() string {
	return "music_tracks"
}

// BeforeCreate 生成 UUID 主键
func (t *MusicTrack) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// GenerateResult 生成接口的返回内容
type GenerateResult struct {
	Message      string      `json:"message,omitempty"`
	TrackID      string      `json:"track_id"`
	Status       TrackStatus `json:"status"`
	FileURL      string      `json:"file_url,omitempty"`
	Duration     *int        `json:"duration,omitempty"`
	FileSize     *int64      `json:"file_size,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

// ResultFromTrack 根据当前记录构造生成结果
func ResultFromTrack(t *MusicTrack, message string) *GenerateResult {
	res := &GenerateResult{
		Message:  message,
		TrackID:  t.ID,
		Status:   t.Status,
		FileURL:  t.FileURL,
		Duration: t.Duration,
		FileSize: t.FileSize,
	}
	if t.ErrorMessage != nil {
		res.ErrorMessage = *t.ErrorMessage
	}
	return res
}
