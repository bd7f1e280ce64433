package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"ReadingFM/core/apperr"
	"ReadingFM/logger"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// writeError 按错误分类输出状态码，内部错误不暴露底层原因
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	message := apperr.MessageOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("请求处理失败",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("kind", string(kind)),
			logger.ErrorField(err))
	}
	writeJSON(w, status, envelope{Error: string(kind), Message: message})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: code, Message: message})
}

// decodeBody 解析请求体，格式错误归为校验错误
func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindValidation, "request body is required")
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return nil
}
