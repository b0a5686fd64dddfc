package puzzledto

import "time"

type RequestMeta struct {
	SessionID string
	Room      string
	Sender    string
}

type MoveHighlight struct {
	From string
	To   string
}

type SessionState struct {
	SessionUUID    string
	PlayerName     string
	PuzzleID       string
	PuzzleNumber   int
	PuzzleCount    int
	MateIn         int
	Description    string
	FEN            string
	SideToMove     string
	Status         string
	Revealed       bool
	Result         string
	Cursor         int
	Played         int
	SolutionLen    int
	AtLiveEdge     bool
	ReplyPending   bool
	Slots          []string
	UserSANs       []string
	OpponentSANs   []string
	LastMove       *MoveHighlight
	HintsUsed      int
	FilterFallback bool
	RatingDelta    int
	Profile        *Profile
	BoardImage     []byte
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// Finished reports whether the line ended in a win or a loss.
func (s *SessionState) Finished() bool {
	return s != nil && (s.Status == StatusWon || s.Status == StatusLost)
}

const (
	StatusPlaying = "playing"
	StatusWon     = "won"
	StatusLost    = "lost"
)

// MoveSummary describes a single submitted move or an opponent reply.
type MoveSummary struct {
	State        *SessionState
	Slot         int // 1-based
	Input        string
	Dropped      bool
	ReplyPending bool
	ReplySAN     string
	Finished     bool
	Profile      *Profile
	RatingDelta  int
}

type Hint struct {
	State     *SessionState
	Move      string
	Reasoning string
	From      string
	To        string
}
