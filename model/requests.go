package model

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CreateJourneyRequest 创建旅程请求
type CreateJourneyRequest struct {
	BookMetadata
}

// Validate 校验并去除首尾空白
func (r *CreateJourneyRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	return validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required.Error("bookTitle is required"), validation.RuneLength(1, 255)),
		validation.Field(&r.Author, validation.RuneLength(0, 255)),
		validation.Field(&r.ISBN, validation.RuneLength(0, 32)),
	)
}

// AddLogRequest 新增阅读记录请求
type AddLogRequest struct {
	Quote         string   `json:"quote"`
	Memo          string   `json:"memo,omitempty"`
	Emotions      []string `json:"emotions,omitempty"`
	IsPublic      bool     `json:"isPublic"`
	GenerateMusic *bool    `json:"generateMusic,omitempty"` // 默认 true
}

// Validate 校验并去除首尾空白
func (r *AddLogRequest) Validate() error {
	r.Quote = strings.TrimSpace(r.Quote)
	r.Memo = strings.TrimSpace(r.Memo)
	return validation.ValidateStruct(r,
		validation.Field(&r.Quote, validation.Required.Error("quote is required")),
		validation.Field(&r.Emotions, validation.Each(validation.RuneLength(1, 50))),
	)
}

// ShouldGenerateMusic generateMusic 缺省时视为 true
func (r *AddLogRequest) ShouldGenerateMusic() bool {
	return r.GenerateMusic == nil || *r.GenerateMusic
}

// CompleteJourneyRequest 完成旅程请求
type CompleteJourneyRequest struct {
	Rating   int    `json:"rating"`
	OneLiner string `json:"oneLiner"`
	Review   string `json:"review"`
	IsPublic bool   `json:"isPublic"`
}

// Validate 校验并去除首尾空白
func (r *CompleteJourneyRequest) Validate() error {
	r.OneLiner = strings.TrimSpace(r.OneLiner)
	r.Review = strings.TrimSpace(r.Review)
	return validation.ValidateStruct(r,
		validation.Field(&r.Rating, validation.Required.Error("rating is required"), validation.Min(1), validation.Max(5)),
		validation.Field(&r.OneLiner, validation.Required.Error("oneLiner is required"), validation.RuneLength(1, 255)),
		validation.Field(&r.Review, validation.Required.Error("review is required")),
	)
}
