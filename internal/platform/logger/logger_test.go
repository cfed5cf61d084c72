package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewSetsDefaultLogger は New がプロセス既定のロガーを設定する唯一の経路であることをテストします
func TestNewSetsDefaultLogger(t *testing.T) {
	logger := New(DefaultConfig())

	assert.Same(t, logger, slog.Default())
}

// TestNewTextFormat は text 指定でテキストハンドラが使われることをテストします
func TestNewTextFormat(t *testing.T) {
	logger := New(Config{Level: slog.LevelDebug, Format: "text"})

	assert.IsType(t, &slog.TextHandler{}, logger.Handler())
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}
