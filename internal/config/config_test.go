package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("IRIS_BASE_URL", "http://iris.local")
	t.Setenv("IRIS_WS_URL", "ws://iris.local/ws")
	t.Setenv("BOT_PREFIX", "!")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http", cfg.EgressMode)
	require.Equal(t, 3600, cfg.PuzzleSessionTTLSec)
	require.Equal(t, 500, cfg.PuzzleReplyDelayMS)
	require.Equal(t, 10, cfg.PuzzleHistoryLimit)
	require.Zero(t, cfg.PuzzleDefaultMateIn)
	require.Empty(t, cfg.AllowedRooms)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ROOMS", " room-a , ,room-b")
	t.Setenv("EGRESS_MODE", "AUTO")
	t.Setenv("PUZZLE_DEFAULT_MATE_IN", "2")
	t.Setenv("PUZZLE_SESSION_TTL", "120")
	t.Setenv("PUZZLE_REPLY_DELAY_MS", "0")
	t.Setenv("PUZZLE_HISTORY_LIMIT", "bogus")
	t.Setenv("PUZZLE_FILE", " /tmp/sets.yaml ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"room-a", "room-b"}, cfg.AllowedRooms)
	require.Equal(t, "auto", cfg.EgressMode)
	require.Equal(t, 2, cfg.PuzzleDefaultMateIn)
	require.Equal(t, 120, cfg.PuzzleSessionTTLSec)
	require.Equal(t, 0, cfg.PuzzleReplyDelayMS)
	require.Equal(t, 10, cfg.PuzzleHistoryLimit)
	require.Equal(t, "/tmp/sets.yaml", cfg.PuzzleFile)
}

func TestLoadFallbackRooms(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ROOMS", "")
	t.Setenv("PUZZLE_ALLOWED_ROOMS", "puzzles")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"puzzles"}, cfg.AllowedRooms)
}

func TestLoadRequiresIris(t *testing.T) {
	setRequired(t)
	t.Setenv("IRIS_BASE_URL", "")

	_, err := Load()
	require.EqualError(t, err, "IRIS_BASE_URL is required")

	setRequired(t)
	t.Setenv("BOT_PREFIX", "  ")
	_, err = Load()
	require.EqualError(t, err, "BOT_PREFIX is required")
}
