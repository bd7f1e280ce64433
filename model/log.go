package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogType 阅读记录类型
type LogType string

const (
	LogTypeV0     LogType = "v0"
	LogTypeVN     LogType = "vN"
	LogTypeVFinal LogType = "vFinal"
)

// ReadingLog 旅程中的一个时刻，创建后不再修改
type ReadingLog struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	JourneyID    string    `json:"journey_id" gorm:"size:36;not null;uniqueIndex:idx_journey_version"`
	LogType      LogType   `json:"log_type" gorm:"size:10;not null"`
	Version      int       `json:"version" gorm:"not null;uniqueIndex:idx_journey_version"`
	Quote        *string   `json:"quote" gorm:"type:text"`
	Memo         *string   `json:"memo" gorm:"type:text"`
	MusicPrompt  *string   `json:"music_prompt" gorm:"type:text"`
	MusicTrackID *string   `json:"music_track_id" gorm:"size:36;index"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`

	// 查询时组装的字段
	Emotions   []string    `json:"emotions,omitempty" gorm:"-"`
	MusicTrack *MusicTrack `json:"music_track,omitempty" gorm:"-"`
}

// TableName 指定表名
func (ReadingLog) TableName() string {
	return "reading_logs"
}

// BeforeCreate 生成 UUID 主键
func (l *ReadingLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// LogTypeForVersion 版本 0 固定为 v0，其余为 vN
func LogTypeForVersion(version int) LogType {
	if version == 0 {
		return LogTypeV0
	}
	return LogTypeVN
}

// LogCreated 新增记录的返回内容，未生成音乐时 Track 为空
type LogCreated struct {
	Log   *ReadingLog `json:"log"`
	Track *MusicTrack `json:"musicTrack,omitempty"`
}

// JourneyCompleted 完成旅程的返回内容
type JourneyCompleted struct {
	Journey *ReadingJourney `json:"journey"`
	Log     *ReadingLog     `json:"log"`
	Track   *MusicTrack     `json:"musicTrack"`
}

// LogMusicStatus 单条记录对应的音乐状态
type LogMusicStatus struct {
	LogID   string           `json:"log_id"`
	Version int              `json:"version"`
	LogType LogType          `json:"log_type"`
	Track   *TrackStatusView `json:"track"`
}

// TrackStatusView 轮询用的精简视图
type TrackStatusView struct {
	ID        string      `json:"id"`
	Status    TrackStatus `json:"status"`
	FileURL   string      `json:"file_url"`
	CreatedAt time.Time   `json:"created_at"`
}

// StrPtr 空字符串返回 nil
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal 解引用，nil 返回空字符串
func StrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
