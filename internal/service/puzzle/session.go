package puzzle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/domain"
	corepuzzle "github.com/park285/mate-puzzle-bot/internal/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/trainer"
)

type session struct {
	mu       sync.Mutex
	identity sessionIdentity
	meta     SessionMeta
	payload  *sessionPayload
	trainer  *trainer.Trainer
	closed   bool
	lastUsed time.Time
}

type sessionPayload struct {
	SessionUUID string        `json:"session_uuid"`
	PlayerHash  string        `json:"player_hash"`
	RoomHash    string        `json:"room_hash"`
	PlayerName  string        `json:"player_name,omitempty"`
	PuzzleID    string        `json:"puzzle_id"`
	MateFilter  int           `json:"mate_filter,omitempty"`
	HintsUsed   int           `json:"hints_used"`
	Recorded    bool          `json:"recorded,omitempty"`
	Result      string        `json:"result,omitempty"`
	RatingDelta int           `json:"rating_delta,omitempty"`
	State       trainer.State `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type SessionState struct {
	SessionUUID    string
	PlayerHash     string
	RoomHash       string
	PlayerName     string
	PuzzleID       string
	PuzzleNumber   int
	PuzzleCount    int
	MateIn         int
	Description    string
	FEN            string
	SideToMove     string
	Status         trainer.Status
	Revealed       bool
	Result         string
	Cursor         int
	Played         int
	LedgerLen      int
	SolutionLen    int
	AtLiveEdge     bool
	ReplyPending   bool
	Slots          []string
	UserSANs       []string
	OpponentSANs   []string
	LastMove       *MoveHighlight
	Highlights     map[string]string
	HintsUsed      int
	FilterFallback bool
	RatingDelta    int
	Profile        *domain.PuzzleProfile
	BoardImage     []byte
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// MoveSummary reports a typed move, a drop or a scheduled opponent reply.
type MoveSummary struct {
	State        *SessionState
	Slot         int
	Input        string
	Dropped      bool
	ReplyPending bool
	ReplySAN     string
	Finished     bool
	Profile      *domain.PuzzleProfile
	RatingDelta  int
}

func (s *Service) trainerOptions(sess *session) []trainer.Option {
	return []trainer.Option{
		trainer.WithScheduler(s.newScheduler(&sess.mu)),
		trainer.WithReplyDelay(s.cfg.ReplyDelay),
		trainer.WithLogger(s.logger.With(zap.String("session_id", sess.identity.SessionID))),
		trainer.WithOnReply(s.replyLanded(sess)),
	}
}

// replyLanded runs under the session lock once the scheduled opponent move
// has been played.
func (s *Service) replyLanded(sess *session) func(*trainer.Trainer) {
	return func(tr *trainer.Trainer) {
		if sess.closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), replyPersistTimeout)
		defer cancel()

		summary := &MoveSummary{Slot: -1}
		if opps := tr.OpponentSans(); len(opps) > 0 {
			summary.ReplySAN = opps[len(opps)-1]
		}
		if tr.Status().Finished() {
			delta, err := s.settle(ctx, sess)
			if err != nil {
				s.logger.Warn("failed to record puzzle attempt after reply",
					zap.String("session_id", sess.identity.SessionID),
					zap.Error(err),
				)
			}
			summary.RatingDelta = delta
		}
		if err := s.persist(ctx, sess); err != nil {
			s.logger.Warn("failed to persist puzzle session after reply",
				zap.String("session_id", sess.identity.SessionID),
				zap.Error(err),
			)
		}
		summary.State = s.stateFor(ctx, sess, sess.meta)
		summary.Finished = tr.Status().Finished()
		summary.Profile = summary.State.Profile
		summary.State.RatingDelta = summary.RatingDelta

		if s.listener != nil {
			meta := sess.meta
			go s.listener(meta, summary)
		}
	}
}

// acquire returns the session locked. Sessions evicted from memory are
// rebuilt from the cache.
func (s *Service) acquire(ctx context.Context, identity sessionIdentity) (*session, error) {
	s.evictIdle()
	for {
		s.mu.Lock()
		sess, ok := s.sessions[identity.SessionID]
		s.mu.Unlock()
		if ok {
			sess.mu.Lock()
			if sess.closed {
				sess.mu.Unlock()
				continue
			}
			sess.lastUsed = s.now()
			return sess, nil
		}

		restored, err := s.restore(ctx, identity)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		if _, raced := s.sessions[identity.SessionID]; raced {
			s.mu.Unlock()
			restored.closed = true
			restored.trainer.Stop()
			restored.mu.Unlock()
			continue
		}
		restored.lastUsed = s.now()
		s.sessions[identity.SessionID] = restored
		s.mu.Unlock()
		return restored, nil
	}
}

func (s *Service) restore(ctx context.Context, identity sessionIdentity) (*session, error) {
	payload, err := s.loadSession(ctx, identity.SessionID)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, ErrSessionNotFound
	}
	p, err := s.catalog.Get(payload.PuzzleID)
	if err != nil {
		s.logger.Warn("dropping puzzle session for unknown puzzle",
			zap.String("session_id", identity.SessionID),
			zap.String("puzzle_id", payload.PuzzleID),
		)
		_ = s.deleteSession(ctx, identity.SessionID)
		return nil, ErrSessionNotFound
	}

	sess := &session{identity: identity, payload: payload}
	sess.mu.Lock()
	tr, err := trainer.Restore(p, payload.State, s.rules, s.trainerOptions(sess)...)
	if err != nil {
		sess.mu.Unlock()
		s.logger.Warn("dropping unreadable puzzle session",
			zap.String("session_id", identity.SessionID),
			zap.Error(err),
		)
		_ = s.deleteSession(ctx, identity.SessionID)
		return nil, ErrSessionNotFound
	}
	sess.trainer = tr
	return sess, nil
}

// evictIdle forgets in-memory sessions nobody touched for a whole session
// TTL. The cached copy is left alone. Busy sessions and sessions waiting on
// an opponent reply are skipped.
func (s *Service) evictIdle() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) < idleSweepInterval {
		return
	}
	s.lastSweep = now
	cutoff := now.Add(-s.cfg.SessionTTL)
	for id, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if sess.lastUsed.Before(cutoff) && !sess.trainer.ReplyPending() {
			sess.closed = true
			sess.trainer.Stop()
			delete(s.sessions, id)
			s.logger.Debug("idle puzzle session evicted", zap.String("session_id", id))
		}
		sess.mu.Unlock()
	}
}

// dropLocked forgets sess. The caller holds sess.mu.
func (s *Service) dropLocked(ctx context.Context, sess *session) {
	sess.closed = true
	sess.trainer.Stop()
	s.mu.Lock()
	if cur, ok := s.sessions[sess.identity.SessionID]; ok && cur == sess {
		delete(s.sessions, sess.identity.SessionID)
	}
	s.mu.Unlock()
	if err := s.deleteSession(ctx, sess.identity.SessionID); err != nil {
		s.logger.Warn("failed to delete puzzle session", zap.Error(err))
	}
}

func (s *Service) sessionKey(sessionID string) string {
	hash := sha256.Sum256([]byte(strings.TrimSpace(sessionID)))
	return "puzzle:sessions:" + hex.EncodeToString(hash[:])
}

func (s *Service) profileCacheKey(identity sessionIdentity) string {
	return "puzzle:profile:" + identity.PlayerHash + ":" + identity.RoomHash
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*sessionPayload, error) {
	payload := &sessionPayload{}
	if err := s.cache.Get(ctx, s.sessionKey(sessionID), payload); err != nil {
		return nil, err
	}
	if payload.PuzzleID == "" {
		return nil, nil
	}
	return payload, nil
}

func (s *Service) persist(ctx context.Context, sess *session) error {
	sess.payload.State = sess.trainer.Snapshot()
	sess.payload.UpdatedAt = s.now()
	return s.cache.Set(ctx, s.sessionKey(sess.identity.SessionID), sess.payload, s.cfg.SessionTTL)
}

func (s *Service) deleteSession(ctx context.Context, sessionID string) error {
	return s.cache.Del(ctx, s.sessionKey(sessionID))
}

// settle records the attempt the first time the trainer reaches an end.
func (s *Service) settle(ctx context.Context, sess *session) (int, error) {
	if sess.payload.Recorded {
		return 0, nil
	}
	tr := sess.trainer
	var result string
	switch {
	case tr.Revealed():
		result = domain.ResultRevealed
	case tr.Status() == trainer.StatusWon:
		result = domain.ResultSolved
	case tr.Status() == trainer.StatusLost:
		result = domain.ResultFailed
	default:
		return 0, nil
	}
	return s.record(ctx, sess, result)
}

func (s *Service) record(ctx context.Context, sess *session, result string) (int, error) {
	identity := sess.identity
	payload := sess.payload
	p := sess.trainer.Puzzle()
	now := s.now()

	profile, err := s.fetchProfile(ctx, identity, false)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return 0, err
	}
	profile, delta := applyAttemptResult(profile, identity, p, result, payload.HintsUsed, now)

	attempt := &domain.PuzzleAttempt{
		SessionUUID:  payload.SessionUUID,
		PlayerHash:   identity.PlayerHash,
		RoomHash:     identity.RoomHash,
		PuzzleID:     p.ID,
		MateIn:       p.MateIn,
		Result:       result,
		UserSANs:     sess.trainer.UserSans(),
		OpponentSANs: sess.trainer.OpponentSans(),
		HintsUsed:    payload.HintsUsed,
		StartedAt:    payload.StartedAt,
		EndedAt:      now,
		Duration:     now.Sub(payload.StartedAt),
		RatingDelta:  delta,
	}
	if _, err := s.repo.InsertAttempt(ctx, attempt); err != nil {
		if !errors.Is(err, ErrDuplicateAttempt) {
			return 0, err
		}
		existing, fetchErr := s.repo.GetAttemptBySession(ctx, payload.SessionUUID, identity.PlayerHash)
		if fetchErr != nil || existing == nil {
			return 0, err
		}
		payload.Recorded = true
		payload.Result = existing.Result
		payload.RatingDelta = existing.RatingDelta
		return 0, nil
	}

	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return 0, err
	}
	s.cacheProfile(ctx, identity, profile)

	payload.Recorded = true
	payload.Result = result
	payload.RatingDelta = delta
	s.logger.Info("puzzle attempt recorded",
		zap.String("session_id", identity.SessionID),
		zap.String("puzzle_id", p.ID),
		zap.String("result", result),
		zap.Int("rating_delta", delta),
	)
	return delta, nil
}

func (s *Service) fetchProfile(ctx context.Context, identity sessionIdentity, allowCache bool) (*domain.PuzzleProfile, error) {
	if allowCache {
		cached := &domain.PuzzleProfile{}
		if err := s.cache.Get(ctx, s.profileCacheKey(identity), cached); err != nil {
			return nil, err
		}
		if cached.PlayerHash != "" {
			return cached, nil
		}
	}
	stored, err := s.repo.GetProfile(ctx, identity.PlayerHash, identity.RoomHash)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrProfileNotFound
	}
	s.cacheProfile(ctx, identity, stored)
	return stored, nil
}

func (s *Service) cacheProfile(ctx context.Context, identity sessionIdentity, profile *domain.PuzzleProfile) {
	if profile == nil {
		return
	}
	if err := s.cache.Set(ctx, s.profileCacheKey(identity), profile, profileCacheTTL); err != nil {
		s.logger.Warn("failed to cache puzzle profile", zap.Error(err))
	}
}

func newProfile(identity sessionIdentity, now time.Time) *domain.PuzzleProfile {
	return &domain.PuzzleProfile{
		PlayerHash: identity.PlayerHash,
		RoomHash:   identity.RoomHash,
		Rating:     defaultPlayerRating,
		CreatedAt:  now,
	}
}

// puzzleRating is the opponent strength a puzzle of the given depth counts as.
func puzzleRating(mateIn int) int {
	return 600 + 200*mateIn
}

// applyAttemptResult scores a finished attempt. A solve with hints counts
// half.
func applyAttemptResult(profile *domain.PuzzleProfile, identity sessionIdentity, p corepuzzle.Puzzle, result string, hints int, endedAt time.Time) (*domain.PuzzleProfile, int) {
	if profile == nil {
		profile = newProfile(identity, endedAt)
	}
	prevRating := profile.Rating

	profile.Attempts++
	profile.LastPuzzleID = p.ID
	profile.LastPlayedAt = endedAt
	profile.UpdatedAt = endedAt

	var score float64
	switch result {
	case domain.ResultSolved:
		profile.Solved++
		profile.Streak++
		if profile.Streak > profile.BestStreak {
			profile.BestStreak = profile.Streak
		}
		score = 1
		if hints > 0 {
			score = 0.5
		}
	case domain.ResultRevealed:
		profile.Revealed++
		profile.Streak = 0
	default:
		profile.Failed++
		profile.Streak = 0
	}

	expected := 1 / (1 + math.Pow(10, float64(puzzleRating(p.MateIn)-profile.Rating)/400))
	newRating := float64(profile.Rating) + kFactor*(score-expected)
	profile.Rating = int(math.Round(newRating))

	return profile, profile.Rating - prevRating
}

func (s *Service) stateFor(ctx context.Context, sess *session, meta SessionMeta) *SessionState {
	tr := sess.trainer
	p := tr.Puzzle()
	users, opps := tr.VisibleSans()

	label := normalizeHUDPlayerLabel(sess.payload.PlayerName)
	if label == "" {
		label = normalizeHUDPlayerLabel(meta.Sender)
	}
	if label == "" {
		label = defaultHUDPlayerLabel
	}
	sess.payload.PlayerName = label

	state := &SessionState{
		SessionUUID:  sess.payload.SessionUUID,
		PlayerHash:   sess.payload.PlayerHash,
		RoomHash:     sess.payload.RoomHash,
		PlayerName:   label,
		PuzzleID:     p.ID,
		PuzzleNumber: s.catalog.Number(p.ID),
		PuzzleCount:  s.catalog.Len(),
		MateIn:       p.MateIn,
		Description:  p.Description,
		FEN:          tr.DisplayedFEN(),
		Status:       tr.Status(),
		Revealed:     tr.Revealed(),
		Result:       sess.payload.Result,
		Cursor:       tr.Cursor(),
		Played:       tr.Played(),
		LedgerLen:    tr.LedgerLen(),
		SolutionLen:  p.Solution.Len(),
		AtLiveEdge:   tr.AtLiveEdge(),
		ReplyPending: tr.ReplyPending(),
		Slots:        tr.Slots(),
		UserSANs:     users,
		OpponentSANs: opps,
		Highlights:   tr.Highlights(),
		HintsUsed:    sess.payload.HintsUsed,
		StartedAt:    sess.payload.StartedAt,
		UpdatedAt:    sess.payload.UpdatedAt,
	}
	if side, err := s.rules.SideToMove(state.FEN); err == nil {
		state.SideToMove = side
	}
	if from, to := tr.DisplayedMove(); from != "" {
		state.LastMove = &MoveHighlight{From: from, To: to}
	}
	if profile, err := s.fetchProfile(ctx, sess.identity, true); err == nil {
		state.Profile = profile
	}
	s.attachBoardImage(ctx, state, p)
	return state
}

func (s *Service) attachBoardImage(ctx context.Context, state *SessionState, p corepuzzle.Puzzle) {
	header := fmt.Sprintf("%s - #%d Mate in %d", state.PlayerName, state.PuzzleNumber, state.MateIn)
	progress := fmt.Sprintf("%d/%d", state.Cursor, state.SolutionLen)

	turn := "White to move"
	if state.SideToMove == "b" {
		turn = "Black to move"
	}
	switch {
	case state.Revealed:
		turn = "Solution"
	case state.Status == trainer.StatusWon:
		turn = "Checkmate"
	case state.Status == trainer.StatusLost:
		turn = "No mate"
	case !state.AtLiveEdge:
		turn = "Reviewing - " + turn
	}

	initialSide, _ := s.rules.SideToMove(p.FEN)
	opts := RenderOptions{
		Highlights:  state.Highlights,
		LastMove:    state.LastMove,
		Flip:        initialSide == "b",
		HUDHeader:   header,
		HUDProgress: progress,
		HUDTurn:     turn,
	}
	data, err := s.renderer.RenderPNG(ctx, state.FEN, opts)
	if err != nil {
		s.logger.Warn("failed to render puzzle board image", zap.Error(err))
		return
	}
	state.BoardImage = data
}
