package puzzledto

// Error codes shared by the service adapter and the chat formatter.
const (
	CodeSyntax          = "syntax"
	CodeIllegalMove     = "illegal_move"
	CodeNotation        = "notation_mismatch"
	CodeOffScript       = "off_script"
	CodeNotCheckmate    = "not_checkmate"
	CodeNotUserTurn     = "not_user_turn"
	CodeSlotOutOfRange  = "slot_out_of_range"
	CodeNoSlot          = "no_slot"
	CodeGameOver        = "game_over"
	CodeNoMoreHints     = "no_more_hints"
	CodeNoSession       = "no_session"
	CodeInProgress      = "in_progress"
	CodeRoomNotAllowed  = "room_not_allowed"
	CodeInvalidMateIn   = "invalid_mate_in"
	CodeNoPuzzles       = "no_puzzles"
	CodeProfileNotFound = "profile_not_found"
	CodeInternal        = "internal"
)

type DomainError struct {
	Code      string
	Message   string
	Slot      int // 1-based, 0 when not tied to a slot
	Expected  string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "puzzle service error"
}
