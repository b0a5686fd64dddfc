package trainer

import (
	"errors"
	"fmt"
)

var (
	ErrSyntax           = errors.New("only strict notation accepted")
	ErrIllegalMove      = errors.New("illegal move")
	ErrNotationMismatch = errors.New("notation mismatch")
	ErrNoScriptedMove   = errors.New("no scripted move left")
	ErrNotCheckmate     = errors.New("move does not deliver checkmate")
	ErrNoMoreHints      = errors.New("no more hints")
	ErrOffScript        = errors.New("move is not the scripted one")
	ErrNotUserTurn      = errors.New("waiting for the opponent reply")
	ErrSlotOutOfRange   = errors.New("slot out of range")
	ErrNoSlotAvailable  = errors.New("all slots are filled")
	ErrGameOver         = errors.New("position is already checkmate")
	ErrInvalidState     = errors.New("invalid trainer state")
)

// SlotError reports a typed move that failed revalidation.
type SlotError struct {
	Slot     int
	Text     string
	Expected string
	Err      error
}

func (e *SlotError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("slot %d %q: %v (expected %s)", e.Slot+1, e.Text, e.Err, e.Expected)
	}
	return fmt.Sprintf("slot %d %q: %v", e.Slot+1, e.Text, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }
