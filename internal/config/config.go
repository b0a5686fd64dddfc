package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	RedisURL    string
	DatabaseURL string

	AllowedRooms []string

	// EgressMode is one of http, ws or auto.
	EgressMode   string
	EgressDryRun bool

	MessagesDir string

	PuzzleFile          string
	PuzzleDefaultMateIn int
	PuzzleSessionTTLSec int
	PuzzleReplyDelayMS  int
	PuzzleHistoryLimit  int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EgressMode:          "http",
		PuzzleSessionTTLSec: 3600,
		PuzzleReplyDelayMS:  500,
		PuzzleHistoryLimit:  10,
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XUserEmail = strings.TrimSpace(os.Getenv("X_USER_EMAIL"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.AllowedRooms = splitList(os.Getenv("ALLOWED_ROOMS"))
	if len(cfg.AllowedRooms) == 0 {
		cfg.AllowedRooms = splitList(os.Getenv("PUZZLE_ALLOWED_ROOMS"))
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("EGRESS_MODE"))); v != "" {
		switch v {
		case "http", "ws", "auto":
			cfg.EgressMode = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("EGRESS_DRYRUN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EgressDryRun = b
		}
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	// Puzzle specific
	cfg.PuzzleFile = strings.TrimSpace(os.Getenv("PUZZLE_FILE"))
	if v := strings.TrimSpace(os.Getenv("PUZZLE_DEFAULT_MATE_IN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PuzzleDefaultMateIn = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PUZZLE_SESSION_TTL")); v != "" { // seconds
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PuzzleSessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PUZZLE_REPLY_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PuzzleReplyDelayMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PUZZLE_HISTORY_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PuzzleHistoryLimit = n
		}
	}

	if cfg.IrisBaseURL == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
