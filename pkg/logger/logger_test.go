package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"modelmine/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	assert.Equal(t, "0", TraceID(nil))
	assert.Equal(t, "0", TraceID(context.Background()))
	assert.Equal(t, "req-1", TraceID(WithTraceID(context.Background(), "req-1")))
	assert.Equal(t, "0", TraceID(WithTraceID(context.Background(), "")))
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	require.NoError(t, Init(config.LoggerConfig{Level: "debug", Output: "file", File: config.LoggerFileConfig{Path: path}}))

	InfoCtx(WithTraceID(context.Background(), "abc"), "hello %s", "world")
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
	assert.Contains(t, string(data), "abc")

	require.NoError(t, Init(config.LoggerConfig{Level: "info", Output: "console"}))
}
