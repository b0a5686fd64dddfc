// Package ledger keeps the ordered list of positions reached in a puzzle
// line. Index 0 is the starting position and is never removed.
package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty      = errors.New("ledger requires an initial position")
	ErrOutOfRange = errors.New("ledger index out of range")
)

type Ledger struct {
	snapshots []string
}

func New(initial string) *Ledger {
	return &Ledger{snapshots: []string{initial}}
}

// Restore rebuilds a ledger from persisted snapshots.
func Restore(snapshots []string) (*Ledger, error) {
	if len(snapshots) == 0 {
		return nil, ErrEmpty
	}
	return &Ledger{snapshots: append([]string(nil), snapshots...)}, nil
}

func (l *Ledger) Append(fen string) { l.snapshots = append(l.snapshots, fen) }

func (l *Ledger) Len() int { return len(l.snapshots) }

func (l *Ledger) At(i int) (string, bool) {
	if i < 0 || i >= len(l.snapshots) {
		return "", false
	}
	return l.snapshots[i], true
}

func (l *Ledger) Initial() string { return l.snapshots[0] }

func (l *Ledger) Last() string { return l.snapshots[len(l.snapshots)-1] }

// TruncateAfter keeps snapshots [0..i].
func (l *Ledger) TruncateAfter(i int) error {
	if i < 0 || i >= len(l.snapshots) {
		return fmt.Errorf("%w: truncate after %d of %d", ErrOutOfRange, i, len(l.snapshots))
	}
	clear(l.snapshots[i+1:])
	l.snapshots = l.snapshots[:i+1]
	return nil
}

// Snapshots returns a copy.
func (l *Ledger) Snapshots() []string { return append([]string(nil), l.snapshots...) }

func (l *Ledger) Clone() *Ledger { return &Ledger{snapshots: l.Snapshots()} }
