package puzzle

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidPuzzle   = errors.New("invalid puzzle")
	ErrInvalidHalfMove = errors.New("invalid half-move")
)

var squareRe = regexp.MustCompile(`^[a-h][1-8]$`)

// Kind tags the two HalfMove forms.
type Kind int

const (
	KindNotation Kind = iota + 1
	KindSquares
)

// HalfMove is one ply of a solution line. It is either freeform notation
// applied as-is, or a from/to square pair with an optional promotion piece.
type HalfMove struct {
	kind      Kind
	text      string
	from      string
	to        string
	promotion string
}

// Notation builds a notation half-move.
func Notation(text string) HalfMove {
	return HalfMove{kind: KindNotation, text: strings.TrimSpace(text)}
}

// Squares builds a structured half-move. Promotion is a lowercase piece letter
// (q, r, b, n) or empty.
func Squares(from, to, promotion string) (HalfMove, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if !squareRe.MatchString(from) || !squareRe.MatchString(to) {
		return HalfMove{}, fmt.Errorf("%w: squares %q-%q", ErrInvalidHalfMove, from, to)
	}
	switch promotion {
	case "", "q", "r", "b", "n":
	default:
		return HalfMove{}, fmt.Errorf("%w: promotion %q", ErrInvalidHalfMove, promotion)
	}
	return HalfMove{kind: KindSquares, from: from, to: to, promotion: promotion}, nil
}

// ParseSquareMove parses "f6-g7" or "f7-f8q".
func ParseSquareMove(raw string) (HalfMove, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	promotion := ""
	if n := len(s); n > 0 && strings.ContainsRune("qrbn", rune(s[n-1])) {
		promotion = s[n-1:]
		s = s[:n-1]
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return HalfMove{}, fmt.Errorf("%w: %q", ErrInvalidHalfMove, raw)
	}
	return Squares(from, to, promotion)
}

func (h HalfMove) Kind() Kind        { return h.kind }
func (h HalfMove) IsStructured() bool { return h.kind == KindSquares }
func (h HalfMove) Text() string      { return h.text }
func (h HalfMove) From() string      { return h.from }
func (h HalfMove) To() string        { return h.to }
func (h HalfMove) Promotion() string { return h.promotion }

// String renders the scripted move literally: notation as written, squares
// as from-to with a trailing promotion letter.
func (h HalfMove) String() string {
	if h.kind == KindSquares {
		return h.from + "-" + h.to + h.promotion
	}
	return h.text
}

// Puzzle is immutable once loaded.
type Puzzle struct {
	ID          string
	FEN         string
	MateIn      int
	Description string
	Solution    Solution
}

func (p *Puzzle) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidPuzzle)
	}
	if strings.TrimSpace(p.FEN) == "" {
		return fmt.Errorf("%w %s: empty position", ErrInvalidPuzzle, p.ID)
	}
	if p.MateIn < 1 {
		return fmt.Errorf("%w %s: mate-in must be positive", ErrInvalidPuzzle, p.ID)
	}
	if p.Solution.Len() == 0 {
		return fmt.Errorf("%w %s: empty solution", ErrInvalidPuzzle, p.ID)
	}
	return nil
}

// Solution is the fixed scripted line. Even plies belong to the user, odd
// plies are the opponent's replies.
type Solution struct {
	moves []HalfMove
}

func NewSolution(moves ...HalfMove) Solution {
	return Solution{moves: append([]HalfMove(nil), moves...)}
}

func (s Solution) Len() int { return len(s.moves) }

func (s Solution) HalfMoveAt(i int) (HalfMove, bool) {
	if i < 0 || i >= len(s.moves) {
		return HalfMove{}, false
	}
	return s.moves[i], true
}

// UserSlotCount is the number of moves the user has to supply.
func (s Solution) UserSlotCount() int { return (len(s.moves) + 1) / 2 }

func IsUserPly(i int) bool { return i%2 == 0 }

// Moves returns a copy of the line.
func (s Solution) Moves() []HalfMove { return append([]HalfMove(nil), s.moves...) }

// Strings renders every half-move with HalfMove.String.
func (s Solution) Strings() []string {
	out := make([]string, len(s.moves))
	for i, m := range s.moves {
		out[i] = m.String()
	}
	return out
}
