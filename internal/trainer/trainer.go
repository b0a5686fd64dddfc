// Package trainer replays a forced-mate puzzle against its scripted solution.
//
// Two move protocols share one ledger: typed moves fill per-slot inputs and
// the whole line is re-simulated on every change, while board drops play
// directly on the live position and trigger the scripted reply after a
// delay. Navigation moves a cursor over the ledger; dropping while browsing
// discards the future of the line.
//
// A Trainer is not safe for concurrent use. Scheduled replies run on the
// Scheduler's goroutine, so callers that share a Trainer across goroutines
// must hand it a Scheduler that takes their lock.
package trainer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/ledger"
	"github.com/park285/mate-puzzle-bot/internal/notation"
	"github.com/park285/mate-puzzle-bot/internal/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/rules"
)

const DefaultReplyDelay = 500 * time.Millisecond

// Rules is the subset of the rules engine the trainer needs.
type Rules interface {
	Load(fen string) (string, error)
	ApplyNotation(fen, text string) (rules.Applied, error)
	ApplySquares(fen, from, to, promotion string) (rules.Applied, error)
	IsCheckmate(fen string) bool
}

type Status string

const (
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

func (s Status) Finished() bool { return s == StatusWon || s == StatusLost }

type Direction int

const (
	First Direction = iota
	Prev
	Next
	Last
)

// Option customises a Trainer.
type Option func(*Trainer)

func WithScheduler(s Scheduler) Option {
	return func(t *Trainer) {
		if s != nil {
			t.sched = s
		}
	}
}

func WithReplyDelay(d time.Duration) Option {
	return func(t *Trainer) {
		if d >= 0 {
			t.delay = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.log = l
		}
	}
}

// WithOnReply registers a callback run after a scheduled opponent reply has
// been applied.
func WithOnReply(fn func(*Trainer)) Option {
	return func(t *Trainer) { t.onReply = fn }
}

type Trainer struct {
	puzzle  puzzle.Puzzle
	rules   Rules
	sched   Scheduler
	delay   time.Duration
	log     *zap.Logger
	onReply func(*Trainer)

	ledger       *ledger.Ledger
	plies        []string
	userSans     []string
	opponentSans []string
	slots        []string
	cursor       int
	played       int
	status       Status
	revealed     bool
	highlights   map[string]string

	pending    Timer
	generation uint64
}

// New starts a fresh attempt at p.
func New(p puzzle.Puzzle, r Rules, opts ...Option) (*Trainer, error) {
	t, err := build(p, r, opts)
	if err != nil {
		return nil, err
	}
	t.Reset()
	return t, nil
}

func build(p puzzle.Puzzle, r Rules, opts []Option) (*Trainer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if r == nil {
		r = rules.New()
	}
	p.FEN = strings.TrimSpace(p.FEN)
	if _, err := r.Load(p.FEN); err != nil {
		return nil, fmt.Errorf("puzzle %s: %w", p.ID, err)
	}
	t := &Trainer{
		puzzle: p,
		rules:  r,
		sched:  ClockScheduler{},
		delay:  DefaultReplyDelay,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(t)
	}
	t.log = t.log.With(zap.String("puzzle_id", p.ID))
	return t, nil
}

// Reset returns to the starting position with empty slots.
func (t *Trainer) Reset() {
	t.invalidate()
	t.ledger = ledger.New(t.puzzle.FEN)
	t.plies = nil
	t.userSans = nil
	t.opponentSans = nil
	t.slots = make([]string, t.puzzle.Solution.UserSlotCount())
	t.cursor = 0
	t.played = 0
	t.status = StatusPlaying
	t.revealed = false
	t.highlights = nil
}

// invalidate cancels any scheduled reply and marks every outstanding one
// stale.
func (t *Trainer) invalidate() {
	t.generation++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// applyHalfMove resolves a scripted half-move against fen.
func (t *Trainer) applyHalfMove(fen string, hm puzzle.HalfMove) (rules.Applied, error) {
	var (
		applied rules.Applied
		err     error
	)
	if hm.IsStructured() {
		applied, err = t.rules.ApplySquares(fen, hm.From(), hm.To(), hm.Promotion())
	} else {
		applied, err = t.rules.ApplyNotation(fen, hm.Text())
	}
	if err != nil {
		return rules.Applied{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, hm, err)
	}
	return applied, nil
}

// SubmitSlot stores text for user slot i and revalidates the whole line.
// The returned error is a *SlotError describing the first failing slot.
func (t *Trainer) SubmitSlot(i int, text string) error {
	if i < 0 || i >= len(t.slots) {
		return fmt.Errorf("%w: %d", ErrSlotOutOfRange, i+1)
	}
	t.slots[i] = strings.TrimSpace(text)
	return t.Revalidate()
}

// SubmitNext fills the next slot: while browsing, the user ply at or after
// the cursor (later slots are cleared); otherwise the first slot not yet
// validated.
func (t *Trainer) SubmitNext(text string) (int, error) {
	var slot int
	browsing := !t.AtLiveEdge()
	if browsing {
		ply := t.cursor
		if !puzzle.IsUserPly(ply) {
			ply++
		}
		slot = ply / 2
	} else {
		slot = len(t.userSans)
	}
	if slot >= len(t.slots) {
		return slot, ErrNoSlotAvailable
	}
	if browsing {
		for j := slot + 1; j < len(t.slots); j++ {
			t.slots[j] = ""
		}
	}
	return slot, t.SubmitSlot(slot, text)
}

// Revalidate re-simulates every filled slot from the starting position.
func (t *Trainer) Revalidate() error {
	t.invalidate()

	led := ledger.New(t.puzzle.FEN)
	var plies, users, opps []string
	fen := t.puzzle.FEN
	valid := 0
	var failure *SlotError

	for i, text := range t.slots {
		if text == "" {
			break
		}
		applied, expected, err := t.applyTyped(fen, i, text)
		if err != nil {
			failure = &SlotError{Slot: i, Text: text, Expected: expected, Err: err}
			break
		}
		led.Append(applied.FEN)
		plies = append(plies, applied.From+applied.To)
		users = append(users, applied.SAN)
		fen = applied.FEN
		valid++

		hm, ok := t.puzzle.Solution.HalfMoveAt(2*i + 1)
		if !ok || t.rules.IsCheckmate(fen) {
			continue
		}
		reply, err := t.applyHalfMove(fen, hm)
		if err != nil {
			failure = &SlotError{Slot: i, Text: text, Err: err}
			break
		}
		led.Append(reply.FEN)
		plies = append(plies, reply.From+reply.To)
		opps = append(opps, reply.SAN)
		fen = reply.FEN
	}

	t.ledger = led
	t.plies = plies
	t.userSans = users
	t.opponentSans = opps
	t.cursor = led.Len() - 1
	t.played = t.cursor
	t.highlights = nil
	t.revealed = false

	switch {
	case failure == nil && valid == len(t.slots) && t.rules.IsCheckmate(fen):
		t.status = StatusWon
	case failure == nil && valid == len(t.slots):
		t.status = StatusLost
	default:
		t.status = StatusPlaying
	}
	t.log.Debug("revalidated",
		zap.Int("valid", valid),
		zap.Int("ledger", led.Len()),
		zap.String("status", string(t.status)))

	if failure != nil {
		return failure
	}
	return nil
}

// applyTyped enforces the typed-move rules for slot i: strict syntax, a
// legal move, and the engine's canonical spelling character for character.
func (t *Trainer) applyTyped(fen string, slot int, text string) (rules.Applied, string, error) {
	if !notation.IsStrict(text) {
		return rules.Applied{}, "", ErrSyntax
	}
	applied, err := t.rules.ApplyNotation(fen, text)
	var amb *rules.AmbiguousError
	switch {
	case errors.As(err, &amb):
		return rules.Applied{}, t.expectedFor(fen, slot, amb.Candidates), ErrNotationMismatch
	case err != nil:
		return rules.Applied{}, "", ErrIllegalMove
	case applied.SAN != text:
		return rules.Applied{}, applied.SAN, ErrNotationMismatch
	}
	return applied, "", nil
}

// expectedFor picks the scripted move's spelling when it is one of the
// ambiguous candidates, else lists them all.
func (t *Trainer) expectedFor(fen string, slot int, candidates []string) string {
	if hm, ok := t.puzzle.Solution.HalfMoveAt(2 * slot); ok {
		if scripted, err := t.applyHalfMove(fen, hm); err == nil {
			for _, c := range candidates {
				if c == scripted.SAN {
					return c
				}
			}
		}
	}
	return strings.Join(candidates, " / ")
}

// Drop plays a board gesture on the live position. The boolean tells the
// board whether to keep the piece; a rejected drop changes nothing.
func (t *Trainer) Drop(from, to, promotion string) (bool, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))

	view := t.ledger
	plies := t.plies
	users, opps := t.userSans, t.opponentSans
	played := t.played
	truncated := false
	if !t.AtLiveEdge() {
		view = t.ledger.Clone()
		if err := view.TruncateAfter(t.cursor); err != nil {
			return false, err
		}
		plies = plies[:t.cursor]
		users = users[:(t.cursor+1)/2]
		opps = opps[:t.cursor/2]
		played = t.cursor
		truncated = true
	}
	live := view.Last()

	if t.rules.IsCheckmate(live) {
		return false, ErrGameOver
	}
	hm, ok := t.puzzle.Solution.HalfMoveAt(played)
	if !ok {
		return false, ErrNoScriptedMove
	}
	if !puzzle.IsUserPly(played) {
		return false, ErrNotUserTurn
	}

	if promotion == "" && hm.IsStructured() {
		promotion = hm.Promotion()
	}
	final := played == t.finalPly()
	var applied rules.Applied
	if final {
		a, err := t.rules.ApplySquares(live, from, to, promotion)
		if err != nil {
			return false, fmt.Errorf("%w: %s-%s", ErrIllegalMove, from, to)
		}
		if !t.rules.IsCheckmate(a.FEN) {
			return false, ErrNotCheckmate
		}
		applied = a
	} else {
		scripted, err := t.applyHalfMove(live, hm)
		if err != nil {
			return false, err
		}
		if scripted.From != from || scripted.To != to {
			return false, fmt.Errorf("%w: %s-%s", ErrOffScript, from, to)
		}
		// the scripted piece is played; a different promotion is off script
		if promotion != "" {
			a, err := t.rules.ApplySquares(live, from, to, promotion)
			if err != nil {
				return false, fmt.Errorf("%w: %s-%s", ErrIllegalMove, from, to)
			}
			if a.FEN != scripted.FEN {
				return false, fmt.Errorf("%w: %s-%s=%s", ErrOffScript, from, to, promotion)
			}
		}
		applied = scripted
	}

	t.invalidate()
	if truncated {
		t.ledger = view
		t.status = StatusPlaying
		t.revealed = false
		for j := len(users); j < len(t.slots); j++ {
			t.slots[j] = ""
		}
	}
	t.ledger.Append(applied.FEN)
	t.plies = append(append([]string(nil), plies...), applied.From+applied.To)
	t.userSans = append(append([]string(nil), users...), applied.SAN)
	t.opponentSans = append([]string(nil), opps...)
	t.slots[played/2] = applied.SAN
	t.played = played + 1
	t.cursor = t.played
	t.highlights = nil

	t.log.Debug("drop accepted",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("san", applied.SAN),
		zap.Bool("truncated", truncated))

	if t.rules.IsCheckmate(applied.FEN) {
		t.status = StatusWon
		return true, nil
	}
	t.scheduleReply()
	return true, nil
}

// finalPly is the last half-move of the line. Only a drop there may leave
// the script, and only with a mate.
func (t *Trainer) finalPly() int {
	return t.puzzle.Solution.Len() - 1
}

// scheduleReply queues the scripted opponent move at the current ply, keyed
// to the present ledger length, cursor and generation.
func (t *Trainer) scheduleReply() {
	if _, ok := t.puzzle.Solution.HalfMoveAt(t.played); !ok {
		return
	}
	if t.pending != nil {
		t.pending.Stop()
	}
	gen, length, cursor := t.generation, t.ledger.Len(), t.cursor
	t.pending = t.sched.AfterFunc(t.delay, func() {
		t.fireReply(gen, length, cursor)
	})
}

func (t *Trainer) fireReply(gen uint64, length, cursor int) {
	if gen != t.generation || t.ledger.Len() != length || t.cursor != cursor {
		t.log.Debug("stale reply discarded", zap.Int("ledger", length), zap.Int("cursor", cursor))
		return
	}
	t.pending = nil
	live := t.ledger.Last()
	if t.rules.IsCheckmate(live) {
		return
	}
	hm, ok := t.puzzle.Solution.HalfMoveAt(t.played)
	if !ok {
		return
	}
	applied, err := t.applyHalfMove(live, hm)
	if err != nil {
		t.log.Warn("scripted reply failed", zap.Int("ply", t.played), zap.Error(err))
		return
	}
	t.generation++
	t.ledger.Append(applied.FEN)
	t.plies = append(t.plies, applied.From+applied.To)
	t.opponentSans = append(t.opponentSans, applied.SAN)
	t.played++
	t.cursor = t.played
	if t.rules.IsCheckmate(applied.FEN) {
		t.status = StatusWon
	}
	if t.onReply != nil {
		t.onReply(t)
	}
}

// resumeReply reschedules a reply that was cancelled while it was the
// opponent's turn at the live edge.
func (t *Trainer) resumeReply() {
	if t.status != StatusPlaying || !t.AtLiveEdge() || puzzle.IsUserPly(t.played) {
		return
	}
	if t.rules.IsCheckmate(t.ledger.Last()) {
		return
	}
	t.scheduleReply()
}

// ReplyPending reports whether an opponent reply is scheduled.
func (t *Trainer) ReplyPending() bool { return t.pending != nil }

// Stop cancels a pending reply without touching the position.
func (t *Trainer) Stop() { t.invalidate() }

// Navigate moves the cursor and returns its new value.
func (t *Trainer) Navigate(dir Direction) int {
	last := t.ledger.Len() - 1
	next := t.cursor
	switch dir {
	case First:
		next = 0
	case Prev:
		next--
	case Next:
		next++
	case Last:
		next = last
	}
	next = max(0, min(next, last))

	t.invalidate()
	t.cursor = next
	t.played = next
	t.highlights = nil
	t.resumeReply()
	return next
}

// Reveal replays the whole solution and marks the puzzle won. Calling it
// again yields the same line.
func (t *Trainer) Reveal() error {
	led := ledger.New(t.puzzle.FEN)
	var plies, users, opps []string
	fen := t.puzzle.FEN
	for i, hm := range t.puzzle.Solution.Moves() {
		applied, err := t.applyHalfMove(fen, hm)
		if err != nil {
			return fmt.Errorf("reveal ply %d: %w", i, err)
		}
		led.Append(applied.FEN)
		plies = append(plies, applied.From+applied.To)
		if puzzle.IsUserPly(i) {
			users = append(users, applied.SAN)
		} else {
			opps = append(opps, applied.SAN)
		}
		fen = applied.FEN
	}

	t.invalidate()
	t.ledger = led
	t.plies = plies
	t.userSans = users
	t.opponentSans = opps
	copy(t.slots, users)
	t.cursor = led.Len() - 1
	t.played = t.puzzle.Solution.Len()
	t.status = StatusWon
	t.revealed = true
	t.highlights = nil
	return nil
}

func (t *Trainer) Puzzle() puzzle.Puzzle { return t.puzzle }
func (t *Trainer) Status() Status        { return t.status }
func (t *Trainer) Revealed() bool        { return t.revealed }
func (t *Trainer) Cursor() int           { return t.cursor }
func (t *Trainer) Played() int           { return t.played }
func (t *Trainer) Ledger() []string      { return t.ledger.Snapshots() }
func (t *Trainer) LedgerLen() int        { return t.ledger.Len() }
func (t *Trainer) UserSans() []string    { return append([]string(nil), t.userSans...) }
func (t *Trainer) OpponentSans() []string {
	return append([]string(nil), t.opponentSans...)
}
func (t *Trainer) Slots() []string { return append([]string(nil), t.slots...) }

func (t *Trainer) AtLiveEdge() bool { return t.cursor == t.ledger.Len()-1 }

func (t *Trainer) DisplayedFEN() string {
	fen, _ := t.ledger.At(t.cursor)
	return fen
}

func (t *Trainer) LiveFEN() string { return t.ledger.Last() }

// VisibleSans returns the user and opponent moves up to the cursor.
func (t *Trainer) VisibleSans() (user, opponent []string) {
	u := min((t.cursor+1)/2, len(t.userSans))
	o := min(t.cursor/2, len(t.opponentSans))
	return append([]string(nil), t.userSans[:u]...), append([]string(nil), t.opponentSans[:o]...)
}

// DisplayedMove returns the squares of the move that led to the displayed
// position, empty at the start.
func (t *Trainer) DisplayedMove() (from, to string) {
	if t.cursor == 0 || t.cursor > len(t.plies) {
		return "", ""
	}
	p := t.plies[t.cursor-1]
	return p[:2], p[2:4]
}

func (t *Trainer) Highlights() map[string]string {
	if len(t.highlights) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.highlights))
	for k, v := range t.highlights {
		out[k] = v
	}
	return out
}
