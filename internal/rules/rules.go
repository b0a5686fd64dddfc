// Package rules wraps corentings/chess behind a FEN-in, FEN-out interface.
// Every call builds a fresh game from the given position, so callers never
// share mutable engine state.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/mate-puzzle-bot/internal/notation"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrIllegalMove     = errors.New("illegal move")
)

// AmbiguousError is returned when loosely written notation names more than one
// legal move.
type AmbiguousError struct {
	Text       string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous move %q: %s", e.Text, strings.Join(e.Candidates, ", "))
}

// Applied is the result of one legal half-move.
type Applied struct {
	SAN  string
	FEN  string
	From string
	To   string
}

// Engine is stateless; the zero value is ready to use.
type Engine struct{}

func New() *Engine { return &Engine{} }

func newGame(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(fen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}

// Load validates fen and returns it in canonical form.
func (e *Engine) Load(fen string) (string, error) {
	game, err := newGame(fen)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

// IsCheckmate reports whether the side to move in fen is mated. Invalid
// positions are never checkmate.
func (e *Engine) IsCheckmate(fen string) bool {
	game, err := newGame(fen)
	if err != nil {
		return false
	}
	return game.Position().Status() == nchess.Checkmate
}

// ApplyNotation plays text on fen. An exact canonical match wins. Failing
// that, the move is matched loosely on piece, destination and promotion with
// capture and check markers ignored; the returned SAN is always canonical, so
// callers can tell the two cases apart by comparing it with text.
func (e *Engine) ApplyNotation(fen, text string) (Applied, error) {
	game, err := newGame(fen)
	if err != nil {
		return Applied{}, err
	}
	san := strings.TrimSpace(text)
	pos := game.Position()
	moves := pos.ValidMoves()
	enc := nchess.AlgebraicNotation{}

	for i := range moves {
		if enc.Encode(pos, &moves[i]) == san {
			return play(game, &moves[i], san)
		}
	}

	want, perr := notation.Parse(san)
	if perr != nil {
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, san)
	}
	want = want.Loose()

	var matched []int
	var candidates []string
	for i := range moves {
		canonical := enc.Encode(pos, &moves[i])
		got, err := notation.Parse(canonical)
		if err != nil {
			continue
		}
		if looseMatch(want, got.Loose(), &moves[i]) {
			matched = append(matched, i)
			candidates = append(candidates, canonical)
		}
	}
	switch len(matched) {
	case 0:
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, san)
	case 1:
		m := &moves[matched[0]]
		return play(game, m, enc.Encode(pos, m))
	default:
		return Applied{}, &AmbiguousError{Text: san, Candidates: candidates}
	}
}

func looseMatch(want, got notation.Parts, m *nchess.Move) bool {
	if want.Castle != "" || got.Castle != "" {
		return want.Castle == got.Castle
	}
	if want.Piece != got.Piece || want.Destination != got.Destination || want.Promotion != got.Promotion {
		return false
	}
	if want.Disambiguation == "" {
		return true
	}
	// "R1d2" is a valid loose reading of "Rd2" even when the engine omits it.
	from := m.S1().String()
	return strings.Contains(from, want.Disambiguation)
}

// ApplySquares plays the move from-to with an optional promotion letter.
func (e *Engine) ApplySquares(fen, from, to, promotion string) (Applied, error) {
	game, err := newGame(fen)
	if err != nil {
		return Applied{}, err
	}
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))

	pos := game.Position()
	moves := pos.ValidMoves()
	for i := range moves {
		m := &moves[i]
		if m.S1().String() != from || m.S2().String() != to {
			continue
		}
		promo := ""
		if m.Promo() != nchess.NoPieceType {
			promo = m.Promo().String()
		}
		if promo != promotion {
			// A bare pawn drop on the last rank promotes to a queen.
			if !(promotion == "" && promo == "q") {
				continue
			}
		}
		return play(game, m, nchess.AlgebraicNotation{}.Encode(pos, m))
	}
	return Applied{}, fmt.Errorf("%w: %s-%s%s", ErrIllegalMove, from, to, promotion)
}

func play(game *nchess.Game, m *nchess.Move, san string) (Applied, error) {
	from, to := m.S1().String(), m.S2().String()
	if err := game.Move(m, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return Applied{SAN: san, FEN: game.FEN(), From: from, To: to}, nil
}

// SideToMove returns "w" or "b" for fen.
func (e *Engine) SideToMove(fen string) (string, error) {
	game, err := newGame(fen)
	if err != nil {
		return "", err
	}
	if game.Position().Turn() == nchess.White {
		return "w", nil
	}
	return "b", nil
}
