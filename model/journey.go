package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JourneyStatus 阅读旅程状态
type JourneyStatus string

const (
	JourneyStatusReading   JourneyStatus = "reading"
	JourneyStatusCompleted JourneyStatus = "completed"
)

// BookMetadata 书籍信息，由上游的图书检索服务提供
type BookMetadata struct {
	Title         string `json:"bookTitle"`
	Author        string `json:"bookAuthor,omitempty"`
	ISBN          string `json:"bookIsbn,omitempty"`
	Description   string `json:"bookDescription,omitempty"`
	Category      string `json:"bookCategory,omitempty"`
	CoverURL      string `json:"bookCoverUrl,omitempty"`
	Publisher     string `json:"bookPublisher,omitempty"`
	PublishedDate string `json:"bookPublishedDate,omitempty"`
}

// ReadingJourney 用户对一本书的阅读旅程。
// rating/one_liner/review/completed_at 只在 completed 状态下有值。
type ReadingJourney struct {
	ID                string        `json:"id" gorm:"primaryKey;size:36"`
	UserID            string        `json:"user_id" gorm:"size:64;index;not null"`
	BookTitle         string        `json:"book_title" gorm:"size:255;not null"`
	BookAuthor        string        `json:"book_author" gorm:"size:255"`
	BookISBN          string        `json:"book_isbn" gorm:"column:book_isbn;size:32"`
	BookDescription   string        `json:"book_description" gorm:"type:text"`
	BookCategory      string        `json:"book_category" gorm:"size:100"`
	BookCoverURL      string        `json:"book_cover_url" gorm:"size:512"`
	BookPublisher     string        `json:"book_publisher" gorm:"size:255"`
	BookPublishedDate string        `json:"book_published_date" gorm:"size:32"`
	Status            JourneyStatus `json:"status" gorm:"size:20;not null;index"`
	Rating            *int          `json:"rating"`
	OneLiner          *string       `json:"one_liner" gorm:"size:255"`
	Review            *string       `json:"review" gorm:"type:text"`
	ReviewIsPublic    bool          `json:"review_is_public"`
	StartedAt         time.Time     `json:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TableName 指定表名
func (ReadingJourney) TableName() string {
	return "reading_journeys"
}

// BeforeCreate 生成 UUID 主键
func (j *ReadingJourney) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

// Book 返回旅程对应的书籍信息
func (j *ReadingJourney) Book() BookMetadata {
	return BookMetadata{
		Title:         j.BookTitle,
		Author:        j.BookAuthor,
		ISBN:          j.BookISBN,
		Description:   j.BookDescription,
		Category:      j.BookCategory,
		CoverURL:      j.BookCoverURL,
		Publisher:     j.BookPublisher,
		PublishedDate: j.BookPublishedDate,
	}
}

// NewReadingJourney 以 reading 状态创建旅程
func NewReadingJourney(userID string, book BookMetadata, now time.Time) *ReadingJourney {
	return &ReadingJourney{
		UserID:            userID,
		BookTitle:         book.Title,
		BookAuthor:        book.Author,
		BookISBN:          book.ISBN,
		BookDescription:   book.Description,
		BookCategory:      book.Category,
		BookCoverURL:      book.CoverURL,
		BookPublisher:     book.Publisher,
		BookPublishedDate: book.PublishedDate,
		Status:            JourneyStatusReading,
		StartedAt:         now,
	}
}

// JourneyCreated 创建旅程的返回内容
type JourneyCreated struct {
	Journey *ReadingJourney `json:"journey"`
	Log     *ReadingLog     `json:"log"`
	Track   *MusicTrack     `json:"musicTrack"`
}

// JourneyDetail 旅程详情，包含所有记录
type JourneyDetail struct {
	Journey *ReadingJourney `json:"journey"`
	Logs    []*ReadingLog   `json:"logs"`
}

// JourneySummary 旅程列表项
type JourneySummary struct {
	ID               string        `json:"id"`
	BookTitle        string        `json:"bookTitle"`
	BookAuthor       string        `json:"bookAuthor"`
	BookCoverURL     string        `json:"bookCoverUrl,omitempty"`
	Status           JourneyStatus `json:"status"`
	LogsCount        int64         `json:"logsCount"`
	MusicTracksCount int64         `json:"musicTracksCount"`
	StartedAt        time.Time     `json:"startedAt"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
	Rating           *int          `json:"rating,omitempty"`
}
