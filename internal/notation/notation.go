// Package notation classifies strict standard algebraic notation without
// consulting a rules engine.
package notation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	castlingRe  = regexp.MustCompile(`^(O-O|O-O-O)([+#])?$`)
	pieceMoveRe = regexp.MustCompile(`^([KQRBN])([a-h]|[1-8])?(x)?([a-h][1-8])(?:=([QRBN]))?([+#])?$`)
	pawnMoveRe  = regexp.MustCompile(`^(?:([a-h])(x))?([a-h][1-8])(?:=([QRBN]))?([+#])?$`)
)

// ErrNotStrict is returned by Parse for text that IsStrict rejects.
var ErrNotStrict = errors.New("only strict notation accepted")

// Parts is the syntactic breakdown of a strict SAN string.
type Parts struct {
	Castle         string // "O-O" or "O-O-O"; empty for other moves
	Piece          string // K, Q, R, B, N; empty for pawns
	Disambiguation string // file or rank; for pawn captures the origin file
	Capture        bool
	Destination    string
	Promotion      string
	Suffix         string // "+", "#" or empty
}

// IsStrict reports whether text is well-formed strict algebraic notation.
func IsStrict(text string) bool {
	_, err := Parse(text)
	return err == nil
}

// Parse splits strict SAN into its parts. Nothing is autocorrected: "o-o",
// "Ng1f3" or "e2e4" are rejected.
func Parse(text string) (Parts, error) {
	san := strings.TrimSpace(text)
	if san == "" {
		return Parts{}, ErrNotStrict
	}
	if m := castlingRe.FindStringSubmatch(san); m != nil {
		return Parts{Castle: m[1], Suffix: m[2]}, nil
	}
	if m := pieceMoveRe.FindStringSubmatch(san); m != nil {
		return Parts{
			Piece:          m[1],
			Disambiguation: m[2],
			Capture:        m[3] != "",
			Destination:    m[4],
			Promotion:      m[5],
			Suffix:         m[6],
		}, nil
	}
	if m := pawnMoveRe.FindStringSubmatch(san); m != nil {
		return Parts{
			Disambiguation: m[1],
			Capture:        m[2] != "",
			Destination:    m[3],
			Promotion:      m[4],
			Suffix:         m[5],
		}, nil
	}
	return Parts{}, ErrNotStrict
}

// Loose returns the parts with check markers dropped, which is how two
// notations naming the same move are compared.
func (p Parts) Loose() Parts {
	p.Suffix = ""
	return p
}
