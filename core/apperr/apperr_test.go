package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"ReadingFM/core/apperr"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := apperr.Wrap(apperr.KindRenderFailed, "render job failed", errors.New("timeouted"))
	assert.Equal(t, "RENDER_FAILED: render job failed: timeouted", err.Error())
	assert.Equal(t, "NOT_FOUND: track not found", apperr.New(apperr.KindNotFound, "track not found").Error())
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := apperr.New(apperr.KindForbidden, "not the owner")
	wrapped := fmt.Errorf("add log: %w", base)

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(wrapped))
	assert.True(t, apperr.Is(wrapped, apperr.KindForbidden))
	assert.False(t, apperr.Is(nil, apperr.KindForbidden))
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("boom")))
	assert.Equal(t, "not the owner", apperr.MessageOf(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", apperr.New(apperr.KindValidation, "bad"), http.StatusBadRequest},
		{"not found", apperr.New(apperr.KindNotFound, "missing"), http.StatusNotFound},
		{"forbidden", apperr.New(apperr.KindForbidden, "no"), http.StatusForbidden},
		{"invalid state", apperr.New(apperr.KindInvalidState, "busy"), http.StatusConflict},
		{"already completed", apperr.New(apperr.KindAlreadyCompleted, "done"), http.StatusConflict},
		{"prompt failed", apperr.New(apperr.KindPromptGenerationFailed, "llm"), http.StatusBadGateway},
		{"track creation", apperr.New(apperr.KindTrackCreationFailed, "db"), http.StatusInternalServerError},
		{"upload failed", apperr.New(apperr.KindUploadFailed, "s3"), http.StatusBadGateway},
		{"unknown", errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apperr.HTTPStatus(tt.err))
		})
	}
}
