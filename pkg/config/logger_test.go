package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swap.log")
	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json", OutputPath: path})
	require.NoError(t, err)

	logger.Info("dropped by level")
	logger.Warn("claim lost", zap.String("order_hash", "0xabc"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "claim lost", entry["msg"])
	require.Equal(t, "0xabc", entry["order_hash"])
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(LoggingConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}
