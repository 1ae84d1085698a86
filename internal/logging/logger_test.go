package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf, slog.LevelInfo)

	logger.Info("Transfer failed", "error", errors.New("boom"), "instance_id", "abc")
	logger.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "boom", line["err"])
	assert.Equal(t, "abc", line["instance_id"])
	assert.NotContains(t, line, "error")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
