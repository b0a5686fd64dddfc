package trainer

import "github.com/park285/mate-puzzle-bot/internal/puzzle"

const (
	HighlightStyle = "rgba(255, 215, 0, 0.45)"

	hintReasoning = "This move is part of the puzzle's solution. It puts pressure on the opponent and leads towards checkmate."
)

// Hint is the next scripted user move counted from the displayed position.
type Hint struct {
	Index     int
	Move      string
	Reasoning string
	From      string
	To        string
}

// Hint returns the user move due next. Structured moves also highlight
// their squares.
func (t *Trainer) Hint() (Hint, error) {
	base := t.cursor
	if t.AtLiveEdge() {
		base = t.played
	}
	target := base
	if !puzzle.IsUserPly(target) {
		target++
	}
	hm, ok := t.puzzle.Solution.HalfMoveAt(target)
	if !ok {
		return Hint{}, ErrNoMoreHints
	}
	h := Hint{Index: target, Move: hm.String(), Reasoning: hintReasoning}
	if hm.IsStructured() {
		h.From, h.To = hm.From(), hm.To()
		t.highlights = map[string]string{
			hm.From(): HighlightStyle,
			hm.To():   HighlightStyle,
		}
	}
	return h, nil
}
