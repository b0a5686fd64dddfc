package puzzle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/domain"
	corepuzzle "github.com/park285/mate-puzzle-bot/internal/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/rules"
	"github.com/park285/mate-puzzle-bot/internal/service/cache"
	"github.com/park285/mate-puzzle-bot/internal/trainer"
)

var (
	ErrSessionNotFound   = errors.New("puzzle session not found")
	ErrSessionInProgress = errors.New("puzzle session already in progress")
	ErrProfileNotFound   = errors.New("puzzle profile not found")
	ErrRoomNotAllowed    = errors.New("puzzle room not allowed")
	ErrInvalidMateIn     = errors.New("invalid mate-in filter")
)

const (
	defaultPlayerRating   = 1200
	kFactor               = 24
	profileCacheTTL       = 6 * time.Hour
	maxHistoryLimit       = 50
	maxMateInFilter       = 9
	playerLabelRuneLimit  = 24
	defaultHUDPlayerLabel = "Player"
	replyPersistTimeout   = 5 * time.Second
	idleSweepInterval     = time.Minute
)

type SessionMeta struct {
	SessionID string
	Room      string
	Sender    string
}

type sessionIdentity struct {
	SessionID  string
	RoomHash   string
	PlayerHash string
}

type Config struct {
	SessionTTL    time.Duration
	HistoryLimit  int
	AllowedRooms  []string
	DefaultMateIn int
	ReplyDelay    time.Duration
}

// ReplyListener is told about opponent replies that land after a drop.
type ReplyListener func(meta SessionMeta, summary *MoveSummary)

type Option func(*Service)

// WithSchedulerFactory replaces the clock used for opponent replies. The
// factory receives the session lock the callbacks must hold.
func WithSchedulerFactory(fn func(sync.Locker) trainer.Scheduler) Option {
	return func(s *Service) {
		if fn != nil {
			s.newScheduler = fn
		}
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

func WithReplyListener(fn ReplyListener) Option {
	return func(s *Service) { s.listener = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type Service struct {
	catalog      *corepuzzle.Catalog
	rules        *rules.Engine
	cache        *cache.CacheService
	renderer     BoardRenderer
	repo         Repository
	cfg          Config
	allowedRooms map[string]struct{}
	logger       *zap.Logger

	newScheduler func(sync.Locker) trainer.Scheduler
	listener     ReplyListener
	now          func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.Mutex
	sessions  map[string]*session
	lastSweep time.Time
}

func NewService(catalog *corepuzzle.Catalog, cacheSvc *cache.CacheService, repo Repository, renderer BoardRenderer, cfg Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, corepuzzle.ErrNoPuzzles
	}
	if cacheSvc == nil {
		return nil, fmt.Errorf("cache service is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("puzzle repository is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("board renderer is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = 10
	}
	if cfg.DefaultMateIn < 0 || cfg.DefaultMateIn > maxMateInFilter {
		cfg.DefaultMateIn = 0
	}
	if cfg.ReplyDelay < 0 {
		cfg.ReplyDelay = trainer.DefaultReplyDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowedRooms := make(map[string]struct{})
	for _, room := range cfg.AllowedRooms {
		normalized := strings.ToLower(strings.TrimSpace(room))
		if normalized == "" {
			continue
		}
		allowedRooms[normalized] = struct{}{}
	}
	cfg.AllowedRooms = append([]string(nil), cfg.AllowedRooms...)

	s := &Service{
		catalog:      catalog,
		rules:        rules.New(),
		cache:        cacheSvc,
		renderer:     renderer,
		repo:         repo,
		cfg:          cfg,
		allowedRooms: allowedRooms,
		logger:       logger,
		newScheduler: func(l sync.Locker) trainer.Scheduler { return trainer.ClockScheduler{Lock: l} },
		now:          time.Now,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sessions:     make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Catalog exposes the loaded puzzle set.
func (s *Service) Catalog() *corepuzzle.Catalog { return s.catalog }

// Start deals a random puzzle. mateIn 0 means the profile preference or the
// configured default; when nothing matches the filter any puzzle is dealt
// and the returned state reports FilterFallback.
func (s *Service) Start(ctx context.Context, meta SessionMeta, mateIn int) (*SessionState, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	if mateIn < 0 || mateIn > maxMateInFilter {
		return nil, ErrInvalidMateIn
	}
	identity := deriveIdentity(meta)

	if sess, err := s.acquire(ctx, identity); err == nil {
		defer sess.mu.Unlock()
		if !sess.trainer.Status().Finished() && !sess.payload.Recorded {
			state := s.stateFor(ctx, sess, meta)
			return state, ErrSessionInProgress
		}
		s.dropLocked(ctx, sess)
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	profile, err := s.fetchProfile(ctx, identity, true)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}
	if mateIn == 0 {
		if profile != nil && profile.PreferredMateIn > 0 {
			mateIn = profile.PreferredMateIn
		} else {
			mateIn = s.cfg.DefaultMateIn
		}
	}

	s.rngMu.Lock()
	p, fellBack := s.catalog.Random(s.rng, mateIn)
	s.rngMu.Unlock()

	now := s.now()
	sess := &session{
		identity: identity,
		meta:     meta,
		lastUsed: now,
		payload: &sessionPayload{
			SessionUUID: uuid.NewString(),
			PlayerHash:  identity.PlayerHash,
			RoomHash:    identity.RoomHash,
			PlayerName:  normalizeHUDPlayerLabel(meta.Sender),
			PuzzleID:    p.ID,
			MateFilter:  mateIn,
			StartedAt:   now,
			UpdatedAt:   now,
		},
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	tr, err := trainer.New(p, s.rules, s.trainerOptions(sess)...)
	if err != nil {
		return nil, err
	}
	sess.trainer = tr

	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[identity.SessionID] = sess
	s.mu.Unlock()

	s.logger.Info("puzzle session started",
		zap.String("session_id", identity.SessionID),
		zap.String("puzzle_id", p.ID),
		zap.Int("mate_in", p.MateIn),
		zap.Bool("filter_fallback", fellBack),
	)

	state := s.stateFor(ctx, sess, meta)
	state.FilterFallback = fellBack
	state.Profile = profile
	return state, nil
}

func (s *Service) Status(ctx context.Context, meta SessionMeta) (*SessionState, error) {
	return s.withSession(ctx, meta, func(sess *session) (*SessionState, error) {
		return s.stateFor(ctx, sess, meta), nil
	})
}

// Submit places a typed move into the next slot.
func (s *Service) Submit(ctx context.Context, meta SessionMeta, text string) (*MoveSummary, error) {
	return s.move(ctx, meta, func(sess *session) (*MoveSummary, error) {
		slot, err := sess.trainer.SubmitNext(text)
		return &MoveSummary{Slot: slot, Input: strings.TrimSpace(text)}, err
	})
}

// SubmitSlot rewrites slot (zero-based) and re-checks the whole line.
func (s *Service) SubmitSlot(ctx context.Context, meta SessionMeta, slot int, text string) (*MoveSummary, error) {
	return s.move(ctx, meta, func(sess *session) (*MoveSummary, error) {
		err := sess.trainer.SubmitSlot(slot, text)
		return &MoveSummary{Slot: slot, Input: strings.TrimSpace(text)}, err
	})
}

func (s *Service) Drop(ctx context.Context, meta SessionMeta, from, to, promotion string) (*MoveSummary, error) {
	return s.move(ctx, meta, func(sess *session) (*MoveSummary, error) {
		before := sess.trainer.Played()
		ok, err := sess.trainer.Drop(from, to, promotion)
		summary := &MoveSummary{Slot: before / 2, Input: strings.TrimSpace(from + " " + to + " " + promotion), Dropped: ok}
		if ok {
			summary.ReplyPending = sess.trainer.ReplyPending()
		}
		return summary, err
	})
}

func (s *Service) Navigate(ctx context.Context, meta SessionMeta, dir trainer.Direction) (*SessionState, error) {
	return s.withSession(ctx, meta, func(sess *session) (*SessionState, error) {
		sess.trainer.Navigate(dir)
		if err := s.persist(ctx, sess); err != nil {
			return nil, err
		}
		return s.stateFor(ctx, sess, meta), nil
	})
}

type HintResult struct {
	State *SessionState
	Hint  trainer.Hint
}

func (s *Service) Hint(ctx context.Context, meta SessionMeta) (*HintResult, error) {
	var hint trainer.Hint
	state, err := s.withSession(ctx, meta, func(sess *session) (*SessionState, error) {
		h, err := sess.trainer.Hint()
		if err != nil {
			return nil, err
		}
		hint = h
		sess.payload.HintsUsed++
		if err := s.persist(ctx, sess); err != nil {
			return nil, err
		}
		return s.stateFor(ctx, sess, meta), nil
	})
	if err != nil {
		return nil, err
	}
	return &HintResult{State: state, Hint: hint}, nil
}

func (s *Service) Reveal(ctx context.Context, meta SessionMeta) (*SessionState, error) {
	return s.withSession(ctx, meta, func(sess *session) (*SessionState, error) {
		if err := sess.trainer.Reveal(); err != nil {
			return nil, err
		}
		delta, err := s.settle(ctx, sess)
		if err != nil {
			return nil, err
		}
		if err := s.persist(ctx, sess); err != nil {
			return nil, err
		}
		state := s.stateFor(ctx, sess, meta)
		state.RatingDelta = delta
		return state, nil
	})
}

// Abandon ends the session. An attempt that never finished is recorded as
// abandoned.
func (s *Service) Abandon(ctx context.Context, meta SessionMeta) (*SessionState, error) {
	return s.withSession(ctx, meta, func(sess *session) (*SessionState, error) {
		delta := 0
		if !sess.payload.Recorded {
			d, err := s.record(ctx, sess, domain.ResultAbandoned)
			if err != nil {
				return nil, err
			}
			delta = d
		}
		state := s.stateFor(ctx, sess, meta)
		state.RatingDelta = delta
		s.dropLocked(ctx, sess)
		return state, nil
	})
}

func (s *Service) History(ctx context.Context, meta SessionMeta, limit int) ([]*domain.PuzzleAttempt, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	identity := deriveIdentity(meta)
	return s.repo.GetRecentAttempts(ctx, identity.PlayerHash, limit)
}

func (s *Service) Profile(ctx context.Context, meta SessionMeta) (*domain.PuzzleProfile, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	identity := deriveIdentity(meta)
	profile, err := s.fetchProfile(ctx, identity, true)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdatePreferredMateIn stores the depth used when Start is called without
// one. 0 clears the preference.
func (s *Service) UpdatePreferredMateIn(ctx context.Context, meta SessionMeta, mateIn int) (*domain.PuzzleProfile, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	if mateIn < 0 || mateIn > maxMateInFilter {
		return nil, ErrInvalidMateIn
	}
	identity := deriveIdentity(meta)
	profile, err := s.fetchProfile(ctx, identity, false)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, err
	}
	now := s.now()
	if profile == nil {
		profile = newProfile(identity, now)
	}
	profile.PreferredMateIn = mateIn
	profile.UpdatedAt = now
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, identity, profile)
	return profile, nil
}

func (s *Service) move(ctx context.Context, meta SessionMeta, fn func(*session) (*MoveSummary, error)) (*MoveSummary, error) {
	var summary *MoveSummary
	var opErr error
	_, err := s.withSession(ctx, meta, func(sess *session) (*SessionState, error) {
		wasFinished := sess.trainer.Status().Finished()
		summary, opErr = fn(sess)
		if summary == nil {
			summary = &MoveSummary{}
		}
		if !wasFinished && sess.trainer.Status().Finished() {
			delta, err := s.settle(ctx, sess)
			if err != nil {
				return nil, err
			}
			summary.RatingDelta = delta
		}
		// Rejected typed moves still change the slots, so save either way.
		if err := s.persist(ctx, sess); err != nil {
			return nil, err
		}
		summary.State = s.stateFor(ctx, sess, meta)
		summary.Finished = sess.trainer.Status().Finished()
		summary.Profile = summary.State.Profile
		summary.State.RatingDelta = summary.RatingDelta
		return summary.State, nil
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return summary, opErr
	}
	return summary, nil
}

// withSession runs fn under the session lock.
func (s *Service) withSession(ctx context.Context, meta SessionMeta, fn func(*session) (*SessionState, error)) (*SessionState, error) {
	if err := s.ensureRoomAllowed(meta); err != nil {
		return nil, err
	}
	sess, err := s.acquire(ctx, deriveIdentity(meta))
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	sess.meta = meta
	return fn(sess)
}

func (s *Service) ensureRoomAllowed(meta SessionMeta) error {
	if len(s.allowedRooms) == 0 {
		return nil
	}
	room := strings.ToLower(strings.TrimSpace(meta.Room))
	if room == "" {
		room = "unknown-room"
	}
	if _, ok := s.allowedRooms[room]; ok {
		return nil
	}
	s.logger.Info("puzzle room access denied",
		zap.String("room", room),
		zap.String("sender", strings.TrimSpace(meta.Sender)),
	)
	return ErrRoomNotAllowed
}

func deriveIdentity(meta SessionMeta) sessionIdentity {
	sessionID := strings.ToLower(strings.TrimSpace(meta.SessionID))
	room := strings.ToLower(strings.TrimSpace(meta.Room))
	sender := strings.ToLower(strings.TrimSpace(meta.Sender))

	return sessionIdentity{
		SessionID:  sessionID,
		RoomHash:   hashString(room),
		PlayerHash: hashString(room + ":" + sender),
	}
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func normalizeHUDPlayerLabel(raw string) string {
	cleaned := strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return ""
	}
	runes := []rune(cleaned)
	if len(runes) > playerLabelRuneLimit {
		truncated := strings.TrimSpace(string(runes[:playerLabelRuneLimit]))
		if truncated == "" {
			return ""
		}
		return truncated + "..."
	}
	return cleaned
}
