package puzzlebuilder

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/config"
	corepuzzle "github.com/park285/mate-puzzle-bot/internal/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/service/cache"
	svcpuzzle "github.com/park285/mate-puzzle-bot/internal/service/puzzle"
)

type Deps struct {
	Service *svcpuzzle.Service
	Catalog *corepuzzle.Catalog
	Cache   *cache.CacheService
	Repo    svcpuzzle.Repository
	DB      *sqlx.DB
}

// Close releases the Redis and Postgres handles.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

func New(cfg *config.AppConfig, logger *zap.Logger, opts ...svcpuzzle.Option) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := loadCatalog(cfg.PuzzleFile)
	if err != nil {
		return nil, err
	}
	logger.Info("puzzle catalog loaded",
		zap.Int("puzzles", catalog.Len()),
		zap.Any("mate_in_counts", catalog.MateInCounts()),
	)

	// Sessions live in Redis.
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required for puzzle sessions/cache")
	}
	cconf, err := parseRedisURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cacheSvc, err := cache.NewCacheService(*cconf, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	// Attempts and profiles go to Postgres when configured.
	var (
		repo svcpuzzle.Repository
		db   *sqlx.DB
	)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err = openPostgres(cfg.DatabaseURL)
		if err != nil {
			_ = cacheSvc.Close()
			return nil, err
		}
		repo = svcpuzzle.NewRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set; puzzle attempts are kept in memory")
		repo = svcpuzzle.NewMemoryRepository()
	}

	svcCfg := svcpuzzle.Config{
		SessionTTL:    time.Duration(cfg.PuzzleSessionTTLSec) * time.Second,
		HistoryLimit:  cfg.PuzzleHistoryLimit,
		AllowedRooms:  append([]string(nil), cfg.AllowedRooms...),
		DefaultMateIn: cfg.PuzzleDefaultMateIn,
		ReplyDelay:    time.Duration(cfg.PuzzleReplyDelayMS) * time.Millisecond,
	}
	service, err := svcpuzzle.NewService(catalog, cacheSvc, repo, svcpuzzle.NewSVGBoardRenderer(), svcCfg, logger, opts...)
	if err != nil {
		_ = cacheSvc.Close()
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	return &Deps{Service: service, Catalog: catalog, Cache: cacheSvc, Repo: repo, DB: db}, nil
}

func loadCatalog(path string) (*corepuzzle.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return corepuzzle.Default()
	}
	catalog, err := corepuzzle.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load puzzles from %s: %w", path, err)
	}
	return catalog, nil
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := svcpuzzle.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func parseRedisURL(raw string) (*cache.CacheConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	portStr := u.Port()
	if portStr == "" {
		portStr = "6379"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &cache.CacheConfig{Host: u.Hostname(), Port: port, Password: pass, DB: db}, nil
}
