package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	KindValidation             Kind = "VALIDATION_ERROR"
	KindNotFound               Kind = "NOT_FOUND"
	KindForbidden              Kind = "FORBIDDEN"
	KindInvalidState           Kind = "INVALID_STATE"
	KindAlreadyCompleted       Kind = "ALREADY_COMPLETED"
	KindPromptGenerationFailed Kind = "PROMPT_GENERATION_FAILED"
	KindTrackCreationFailed    Kind = "TRACK_CREATION_FAILED"
	KindLogCreationFailed      Kind = "LOG_CREATION_FAILED"
	KindRenderFailed           Kind = "RENDER_FAILED"
	KindUploadFailed           Kind = "UPLOAD_FAILED"
	KindInternal               Kind = "INTERNAL_ERROR"
)

// Error 带分类的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建业务错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 包装底层错误
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 返回错误链上第一个业务错误的分类，没有则为 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误分类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf 返回适合展示给用户的信息
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus 将错误映射为 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindAlreadyCompleted:
		return http.StatusConflict
	case KindPromptGenerationFailed, KindRenderFailed, KindUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
