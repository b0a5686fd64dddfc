package puzzle

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSquareMove(t *testing.T) {
	hm, err := ParseSquareMove(" F7-f8Q ")
	require.NoError(t, err)
	require.True(t, hm.IsStructured())
	require.Equal(t, "f7", hm.From())
	require.Equal(t, "f8", hm.To())
	require.Equal(t, "q", hm.Promotion())
	require.Equal(t, "f7-f8q", hm.String())

	for _, bad := range []string{"f7f8", "z1-a2", "a1-a9", "a7-a8k", ""} {
		_, err := ParseSquareMove(bad)
		require.ErrorIsf(t, err, ErrInvalidHalfMove, "input %q", bad)
	}
}

func TestSolutionSlots(t *testing.T) {
	a, _ := ParseSquareMove("e2-e8")
	b, _ := ParseSquareMove("d8-e8")
	s := NewSolution(a, b, Notation("Rxe8#"))
	require.Equal(t, 3, s.Len())
	require.Equal(t, 2, s.UserSlotCount())
	require.Equal(t, []string{"e2-e8", "d8-e8", "Rxe8#"}, s.Strings())

	hm, ok := s.HalfMoveAt(2)
	require.True(t, ok)
	require.False(t, hm.IsStructured())
	_, ok = s.HalfMoveAt(3)
	require.False(t, ok)

	require.True(t, IsUserPly(0))
	require.False(t, IsUserPly(1))
}

func TestValidate(t *testing.T) {
	hm, _ := ParseSquareMove("a1-a8")
	p := Puzzle{ID: "x", FEN: "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", MateIn: 1, Solution: NewSolution(hm)}
	require.NoError(t, p.Validate())

	q := p
	q.MateIn = 0
	require.ErrorIs(t, q.Validate(), ErrInvalidPuzzle)
	q = p
	q.FEN = " "
	require.ErrorIs(t, q.Validate(), ErrInvalidPuzzle)
	q = p
	q.Solution = NewSolution()
	require.ErrorIs(t, q.Validate(), ErrInvalidPuzzle)
}

func TestMateInFromLabel(t *testing.T) {
	cases := map[string]int{
		"Mate in One":   1,
		"Mate in Two":   2,
		"mate in three": 3,
		"Mate in 7":     7,
		"Puzzle":        1,
		"":              1,
	}
	for label, want := range cases {
		require.Equalf(t, want, MateInFromLabel(label), "label %q", label)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, 4, c.Len())

	p, err := c.Get("4")
	require.NoError(t, err)
	require.Equal(t, 2, p.MateIn)
	require.Equal(t, "White to Move", p.Description)
	require.Equal(t, []string{"e2-e8", "d8-e8", "e1-e8"}, p.Solution.Strings())
	require.Equal(t, 4, c.Number("4"))

	_, err = c.Get("404")
	require.ErrorIs(t, err, ErrPuzzleNotFound)
	require.Equal(t, map[int]int{1: 3, 2: 1}, c.MateInCounts())
	require.Equal(t, []int{1, 2}, c.Depths())
}

func TestLoadJSONDefaults(t *testing.T) {
	raw := `{"problems":[{"problemid":"a","fen":"7k/4P3/6K1/8/8/8/8/8 w - - 0 1","moves":"e7-e8q"}]}`
	ps, err := LoadJSON(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, ps, 1)
	require.Equal(t, "a", ps[0].ID)
	require.Equal(t, 1, ps[0].MateIn)
	require.Equal(t, "White to Move", ps[0].Description)
	hm, _ := ps[0].Solution.HalfMoveAt(0)
	require.Equal(t, "q", hm.Promotion())

	_, err = LoadJSON(strings.NewReader(`{"problems":[{"fen":"x","moves":"e7e8"}]}`))
	require.ErrorIs(t, err, ErrInvalidHalfMove)
}

func TestLoadYAMLFile(t *testing.T) {
	c, err := LoadFile(filepath.Join("testdata", "sets.yaml"))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	p, err := c.Get("back-rank")
	require.NoError(t, err)
	moves := p.Solution.Moves()
	require.False(t, moves[0].IsStructured())
	require.Equal(t, "Re8+", moves[0].Text())
	require.True(t, moves[1].IsStructured())
	require.Equal(t, "d8-e8", moves[1].String())
	require.True(t, moves[2].IsStructured())

	k, err := c.Get("knights")
	require.NoError(t, err)
	require.Equal(t, "White to Move", k.Description)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	hm, _ := ParseSquareMove("a1-a8")
	p := Puzzle{ID: "1", FEN: "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", MateIn: 1, Solution: NewSolution(hm)}
	_, err := NewCatalog([]Puzzle{p, p})
	require.ErrorIs(t, err, ErrInvalidPuzzle)
	_, err = NewCatalog(nil)
	require.ErrorIs(t, err, ErrNoPuzzles)
}

func TestRandomFilter(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		p, fellBack := c.Random(rng, 2)
		require.False(t, fellBack)
		require.Equal(t, "4", p.ID)
	}
	_, fellBack := c.Random(rng, 5)
	require.True(t, fellBack)
	_, fellBack = c.Random(rng, 0)
	require.False(t, fellBack)
}
