package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"音乐ID", "大小", "更新时间"},
		[][]string{
			{"t-1", "1.2 MB", "2026-10-19 12:00:00"},
			{"t-2"},
		},
		1,
	)
	assert.Contains(t, out, "t-1")
	assert.Contains(t, out, "1.2 MB")
	assert.Contains(t, out, "t-2")
	assert.Equal(t, 6, len(strings.Split(strings.TrimSpace(out), "\n")))
}

func TestRenderTable_NoHeaders(t *testing.T) {
	assert.Empty(t, renderTable(nil, [][]string{{"x"}}))
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
