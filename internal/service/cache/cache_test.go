package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Name  string   `json:"name"`
	Moves []string `json:"moves"`
}

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil), mr
}

func TestSetGetDel(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", &payload{Name: "a", Moves: []string{"Re8+"}}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	var got payload
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "a" || len(got.Moves) != 1 || got.Moves[0] != "Re8+" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	var missing payload
	if err := c.Get(ctx, "k", &missing); err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if missing.Name != "" {
		t.Fatalf("expected zero payload, got %+v", missing)
	}
}

func TestGetRejectsGarbage(t *testing.T) {
	c, mr := newTestCache(t)
	if err := mr.Set("bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var got payload
	if err := c.Get(context.Background(), "bad", &got); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestTouchExtendsTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	if err := c.Set(ctx, "k", payload{Name: "a"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Touch(ctx, "k", time.Hour); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if ttl := mr.TTL("k"); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}
