package mylog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestIsOperatorRecord(t *testing.T) {
	info := slog.NewRecord(time.Now(), slog.LevelInfo, "seeded", 0)
	assert.False(t, isOperatorRecord(context.Background(), info))

	tagged := slog.NewRecord(time.Now(), slog.LevelInfo, "seeded", 0)
	tagged.AddAttrs(slog.Bool("telegram", true))
	assert.True(t, isOperatorRecord(context.Background(), tagged))

	failure := slog.NewRecord(time.Now(), slog.LevelError, "chat failed", 0)
	assert.True(t, isOperatorRecord(context.Background(), failure))
}
