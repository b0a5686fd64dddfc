package puzzlebuilder

import (
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/mate-puzzle-bot/internal/config"
)

func TestParseRedisURL(t *testing.T) {
	cfg, err := parseRedisURL("redis://:secret@cache.local:6380/3")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if cfg.Host != "cache.local" || cfg.Port != 6380 || cfg.Password != "secret" || cfg.DB != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	cfg, err = parseRedisURL("redis://localhost")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if cfg.Port != 6379 || cfg.DB != 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	if _, err := parseRedisURL("http://localhost:6379"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestNewWithoutDatabaseUsesMemoryRepo(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	deps, err := New(&config.AppConfig{
		RedisURL:            fmt.Sprintf("redis://%s/0", mr.Addr()),
		PuzzleSessionTTLSec: 60,
		PuzzleHistoryLimit:  5,
		PuzzleReplyDelayMS:  500,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer deps.Close()
	if deps.DB != nil {
		t.Fatalf("no database expected")
	}
	if deps.Catalog.Len() == 0 || deps.Service == nil {
		t.Fatalf("service not wired")
	}
}

func TestNewRequiresRedis(t *testing.T) {
	if _, err := New(&config.AppConfig{PuzzleSessionTTLSec: 60}, nil); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}
