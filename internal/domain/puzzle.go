package domain

import "time"

// Attempt results.
const (
	ResultSolved    = "solved"
	ResultFailed    = "failed"
	ResultRevealed  = "revealed"
	ResultAbandoned = "abandoned"
)

type PuzzleAttempt struct {
	ID           int64
	SessionUUID  string
	PlayerHash   string
	RoomHash     string
	PuzzleID     string
	MateIn       int
	Result       string
	UserSANs     []string
	OpponentSANs []string
	HintsUsed    int
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
	RatingDelta  int
}

type PuzzleProfile struct {
	PlayerHash      string
	RoomHash        string
	PreferredMateIn int
	Rating          int
	Attempts        int
	Solved          int
	Failed          int
	Revealed        int
	Streak          int
	BestStreak      int
	LastPuzzleID    string
	LastPlayedAt    time.Time
	UpdatedAt       time.Time
	CreatedAt       time.Time
}

// SolveRate is the share of attempts solved without revealing, in percent.
func (p *PuzzleProfile) SolveRate() float64 {
	if p == nil || p.Attempts == 0 {
		return 0
	}
	return float64(p.Solved) * 100 / float64(p.Attempts)
}
