package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateJourneyRequest_Validate(t *testing.T) {
	r := &CreateJourneyRequest{BookMetadata{Title: "  노인과 바다  "}}
	assert.NoError(t, r.Validate())
	assert.Equal(t, "노인과 바다", r.Title)

	blank := &CreateJourneyRequest{BookMetadata{Title: "   "}}
	err := blank.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bookTitle is required")
}

func TestAddLogRequest_Validate(t *testing.T) {
	r := &AddLogRequest{Quote: " 인간은 패배하도록 만들어지지 않았다 ", Emotions: []string{"감동"}}
	assert.NoError(t, r.Validate())
	assert.True(t, r.ShouldGenerateMusic())

	off := false
	r.GenerateMusic = &off
	assert.False(t, r.ShouldGenerateMusic())

	assert.Error(t, (&AddLogRequest{Quote: "\n"}).Validate())
	assert.Error(t, (&AddLogRequest{Quote: "q", Emotions: []string{strings.Repeat("가", 51)}}).Validate())
}

func TestCompleteJourneyRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CompleteJourneyRequest
		wantErr bool
	}{
		{"valid", CompleteJourneyRequest{Rating: 5, OneLiner: "좋았다", Review: "긴 감상"}, false},
		{"missing rating", CompleteJourneyRequest{OneLiner: "a", Review: "b"}, true},
		{"rating too high", CompleteJourneyRequest{Rating: 6, OneLiner: "a", Review: "b"}, true},
		{"blank one-liner", CompleteJourneyRequest{Rating: 3, OneLiner: "  ", Review: "b"}, true},
		{"missing review", CompleteJourneyRequest{Rating: 3, OneLiner: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
