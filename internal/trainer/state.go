package trainer

import (
	"fmt"

	"github.com/park285/mate-puzzle-bot/internal/ledger"
	"github.com/park285/mate-puzzle-bot/internal/puzzle"
)

// State is the serialisable form of a Trainer.
type State struct {
	PuzzleID     string            `json:"puzzle_id"`
	Ledger       []string          `json:"ledger"`
	Plies        []string          `json:"plies"`
	UserSans     []string          `json:"user_sans"`
	OpponentSans []string          `json:"opponent_sans"`
	Slots        []string          `json:"slots"`
	Cursor       int               `json:"cursor"`
	Played       int               `json:"played"`
	Status       Status            `json:"status"`
	Revealed     bool              `json:"revealed,omitempty"`
	Highlights   map[string]string `json:"highlights,omitempty"`
}

func (t *Trainer) Snapshot() State {
	return State{
		PuzzleID:     t.puzzle.ID,
		Ledger:       t.ledger.Snapshots(),
		Plies:        append([]string(nil), t.plies...),
		UserSans:     t.UserSans(),
		OpponentSans: t.OpponentSans(),
		Slots:        t.Slots(),
		Cursor:       t.cursor,
		Played:       t.played,
		Status:       t.status,
		Revealed:     t.revealed,
		Highlights:   t.Highlights(),
	}
}

// Restore rebuilds a Trainer from a snapshot of p. A reply that was pending
// when the snapshot was taken is scheduled again.
func Restore(p puzzle.Puzzle, st State, r Rules, opts ...Option) (*Trainer, error) {
	t, err := build(p, r, opts)
	if err != nil {
		return nil, err
	}
	if err := st.check(t.puzzle); err != nil {
		return nil, err
	}
	led, err := ledger.Restore(st.Ledger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	t.ledger = led
	t.plies = append([]string(nil), st.Plies...)
	t.userSans = append([]string(nil), st.UserSans...)
	t.opponentSans = append([]string(nil), st.OpponentSans...)
	t.slots = append([]string(nil), st.Slots...)
	t.cursor = st.Cursor
	t.played = st.Played
	t.status = st.Status
	t.revealed = st.Revealed
	if len(st.Highlights) > 0 {
		t.highlights = make(map[string]string, len(st.Highlights))
		for k, v := range st.Highlights {
			t.highlights[k] = v
		}
	}
	t.resumeReply()
	return t, nil
}

func (st State) check(p puzzle.Puzzle) error {
	switch {
	case st.PuzzleID != p.ID:
		return fmt.Errorf("%w: puzzle %q does not match %q", ErrInvalidState, st.PuzzleID, p.ID)
	case len(st.Ledger) == 0 || st.Ledger[0] != p.FEN:
		return fmt.Errorf("%w: ledger does not start at the puzzle position", ErrInvalidState)
	case len(st.Ledger) != 1+len(st.UserSans)+len(st.OpponentSans):
		return fmt.Errorf("%w: ledger length %d with %d+%d moves", ErrInvalidState, len(st.Ledger), len(st.UserSans), len(st.OpponentSans))
	case len(st.Plies) != len(st.Ledger)-1:
		return fmt.Errorf("%w: %d plies for %d positions", ErrInvalidState, len(st.Plies), len(st.Ledger))
	case len(st.Slots) != p.Solution.UserSlotCount():
		return fmt.Errorf("%w: %d slots", ErrInvalidState, len(st.Slots))
	case st.Cursor < 0 || st.Cursor >= len(st.Ledger):
		return fmt.Errorf("%w: cursor %d", ErrInvalidState, st.Cursor)
	}
	switch st.Status {
	case StatusPlaying, StatusWon, StatusLost:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidState, st.Status)
	}
	return nil
}
