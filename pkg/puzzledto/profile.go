package puzzledto

import "time"

type Profile struct {
	PreferredMateIn int
	Rating          int
	Attempts        int
	Solved          int
	Failed          int
	Revealed        int
	Streak          int
	BestStreak      int
	SolveRate       float64
	LastPuzzleID    string
	LastPlayedAt    time.Time
}

type Attempt struct {
	ID           int64
	PuzzleID     string
	MateIn       int
	Result       string
	UserSANs     []string
	OpponentSANs []string
	HintsUsed    int
	RatingDelta  int
	EndedAt      time.Time
	Duration     time.Duration
}
