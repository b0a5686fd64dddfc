package trainer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/mate-puzzle-bot/internal/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/rules"
)

func squares(t *testing.T, raw ...string) puzzle.Solution {
	t.Helper()
	moves := make([]puzzle.HalfMove, 0, len(raw))
	for _, r := range raw {
		hm, err := puzzle.ParseSquareMove(r)
		require.NoError(t, err)
		moves = append(moves, hm)
	}
	return puzzle.NewSolution(moves...)
}

func backRankInOne(t *testing.T) puzzle.Puzzle {
	return puzzle.Puzzle{ID: "1", FEN: "6k1/5ppp/8/8/8/8/8/R5K1 w - - 0 1", MateIn: 1, Description: "White to Move", Solution: squares(t, "a1-a8")}
}

func queenInOne(t *testing.T) puzzle.Puzzle {
	return puzzle.Puzzle{ID: "2", FEN: "7k/5K2/8/8/8/8/8/3Q4 w - - 0 1", MateIn: 1, Solution: squares(t, "d1-h5")}
}

func backRankInTwo(t *testing.T) puzzle.Puzzle {
	return puzzle.Puzzle{ID: "4", FEN: "3r2k1/5ppp/8/8/8/8/4RPPP/4R1K1 w - - 0 1", MateIn: 2, Solution: squares(t, "e2-e8", "d8-e8", "e1-e8")}
}

func knights(t *testing.T) puzzle.Puzzle {
	return puzzle.Puzzle{ID: "k", FEN: "4k3/8/8/8/8/8/3N4/4K1N1 w - - 0 1", MateIn: 1, Solution: squares(t, "g1-f3")}
}

func newTrainer(t *testing.T, p puzzle.Puzzle) (*Trainer, *ManualScheduler) {
	t.Helper()
	sched := NewManualScheduler()
	tr, err := New(p, rules.New(), WithScheduler(sched))
	require.NoError(t, err)
	return tr, sched
}

func requireConsistent(t *testing.T, tr *Trainer) {
	t.Helper()
	led := tr.Ledger()
	require.Equal(t, tr.Puzzle().FEN, led[0])
	require.Equal(t, len(led), 1+len(tr.UserSans())+len(tr.OpponentSans()))
	require.GreaterOrEqual(t, tr.Cursor(), 0)
	require.Less(t, tr.Cursor(), len(led))
}

func TestNewRejectsBadPuzzle(t *testing.T) {
	p := backRankInOne(t)
	p.FEN = "garbage"
	_, err := New(p, nil)
	require.ErrorIs(t, err, rules.ErrInvalidPosition)

	p = backRankInOne(t)
	p.Solution = puzzle.NewSolution()
	_, err = New(p, nil)
	require.ErrorIs(t, err, puzzle.ErrInvalidPuzzle)
}

func TestTypedLineWins(t *testing.T) {
	tr, sched := newTrainer(t, backRankInTwo(t))

	require.NoError(t, tr.SubmitSlot(0, "Re8+"))
	require.Equal(t, []string{"Re8+"}, tr.UserSans())
	require.Equal(t, []string{"Rxe8"}, tr.OpponentSans())
	require.Equal(t, 2, tr.Cursor())
	require.Equal(t, StatusPlaying, tr.Status())
	requireConsistent(t, tr)

	require.NoError(t, tr.SubmitSlot(1, "Rxe8#"))
	require.Equal(t, StatusWon, tr.Status())
	require.Equal(t, 4, tr.LedgerLen())
	require.Equal(t, 3, tr.Cursor())
	require.Equal(t, 0, sched.Pending())
	requireConsistent(t, tr)
}

func TestTypedLineLostWhenNotMate(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	require.NoError(t, tr.SubmitSlot(0, "Re8+"))
	require.NoError(t, tr.SubmitSlot(1, "Re2"))
	require.Equal(t, StatusLost, tr.Status())
	requireConsistent(t, tr)
}

func TestTypedErrors(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		want     error
		expected string
	}{
		{"syntax", "e2e8", ErrSyntax, ""},
		{"lowercase castle", "o-o", ErrSyntax, ""},
		{"illegal", "Rb8", ErrIllegalMove, ""},
		{"missing check marker", "Re8", ErrNotationMismatch, "Re8+"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _ := newTrainer(t, backRankInTwo(t))
			err := tr.SubmitSlot(0, tc.text)
			require.ErrorIs(t, err, tc.want)
			var se *SlotError
			require.True(t, errors.As(err, &se))
			require.Equal(t, 0, se.Slot)
			require.Equal(t, tc.expected, se.Expected)
			require.Equal(t, 1, tr.LedgerLen())
			require.Equal(t, StatusPlaying, tr.Status())
			requireConsistent(t, tr)
		})
	}
}

func TestTypedDisambiguationMismatch(t *testing.T) {
	tr, _ := newTrainer(t, knights(t))
	err := tr.SubmitSlot(0, "Nf3")
	require.ErrorIs(t, err, ErrNotationMismatch)
	var se *SlotError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "Ngf3", se.Expected)
	require.Equal(t, 1, tr.LedgerLen())
	require.Empty(t, tr.UserSans())

	require.NoError(t, tr.SubmitSlot(0, "Ngf3"))
	require.Equal(t, []string{"Ngf3"}, tr.UserSans())
	require.Equal(t, StatusLost, tr.Status())
}

func TestTypedStopsAtFirstFailure(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	require.NoError(t, tr.SubmitSlot(0, "Re8+"))
	require.NoError(t, tr.SubmitSlot(1, "Rxe8#"))
	require.Equal(t, StatusWon, tr.Status())

	err := tr.SubmitSlot(0, "Qd4")
	require.ErrorIs(t, err, ErrIllegalMove)
	require.Equal(t, 1, tr.LedgerLen())
	require.Equal(t, StatusPlaying, tr.Status())
	require.Equal(t, []string{"Qd4", "Rxe8#"}, tr.Slots())
	requireConsistent(t, tr)

	require.ErrorIs(t, tr.SubmitSlot(2, "Re8+"), ErrSlotOutOfRange)
}

func TestTypedEarlyMateSkipsReply(t *testing.T) {
	p := backRankInOne(t)
	p.MateIn = 2
	p.Solution = squares(t, "a1-a2", "g8-f8", "a2-a8")
	tr, _ := newTrainer(t, p)

	require.NoError(t, tr.SubmitSlot(0, "Ra8#"))
	require.Equal(t, []string{"Ra8#"}, tr.UserSans())
	require.Empty(t, tr.OpponentSans())
	require.Equal(t, 2, tr.LedgerLen())
	require.Equal(t, StatusPlaying, tr.Status())

	err := tr.SubmitSlot(1, "Ra7")
	require.ErrorIs(t, err, ErrIllegalMove)
	var se *SlotError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 1, se.Slot)
	requireConsistent(t, tr)
}

func TestSubmitNext(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	slot, err := tr.SubmitNext("Re8+")
	require.NoError(t, err)
	require.Equal(t, 0, slot)

	slot, err = tr.SubmitNext("Rxe8#")
	require.NoError(t, err)
	require.Equal(t, 1, slot)
	require.Equal(t, StatusWon, tr.Status())

	_, err = tr.SubmitNext("Re1")
	require.ErrorIs(t, err, ErrNoSlotAvailable)

	tr.Navigate(First)
	tr.Navigate(Next)
	slot, err = tr.SubmitNext("Re2")
	require.NoError(t, err)
	require.Equal(t, 1, slot)
	require.Equal(t, StatusLost, tr.Status())
}

func TestDropFinalMoveAcceptsAnyMate(t *testing.T) {
	for _, target := range []string{"h5", "h1"} {
		tr, sched := newTrainer(t, queenInOne(t))
		ok, err := tr.Drop("d1", target, "")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, StatusWon, tr.Status())
		require.Equal(t, 0, sched.Pending())
		requireConsistent(t, tr)
	}

	tr, _ := newTrainer(t, queenInOne(t))
	ok, err := tr.Drop("d1", "d2", "")
	require.ErrorIs(t, err, ErrNotCheckmate)
	require.False(t, ok)
	require.Equal(t, 1, tr.LedgerLen())
	require.Equal(t, StatusPlaying, tr.Status())
}

func TestDropNonFinalMustFollowScript(t *testing.T) {
	tr, sched := newTrainer(t, backRankInTwo(t))
	ok, err := tr.Drop("e2", "e7", "")
	require.ErrorIs(t, err, ErrOffScript)
	require.False(t, ok)
	require.Equal(t, 1, tr.LedgerLen())
	require.Equal(t, 0, sched.Pending())

	ok, err = tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"Re8+"}, tr.UserSans())
	require.Equal(t, 1, sched.Pending())
	require.True(t, tr.ReplyPending())

	_, err = tr.Drop("e1", "e8", "")
	require.ErrorIs(t, err, ErrNotUserTurn)

	require.Equal(t, 1, sched.Fire())
	require.Equal(t, []string{"Rxe8"}, tr.OpponentSans())
	require.Equal(t, 2, tr.Cursor())
	require.False(t, tr.ReplyPending())

	ok, err = tr.Drop("e1", "e8", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusWon, tr.Status())
	require.Equal(t, []string{"Re8+", "Rxe8#"}, tr.Slots())
	requireConsistent(t, tr)
}

func TestDropEvenLineEndsOnReply(t *testing.T) {
	p := backRankInTwo(t)
	p.Solution = squares(t, "e2-e8", "d8-e8")
	tr, sched := newTrainer(t, p)

	ok, err := tr.Drop("e2", "e7", "")
	require.ErrorIs(t, err, ErrOffScript)
	require.False(t, ok)

	ok, err = tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, tr.LedgerLen())
	require.Equal(t, 1, sched.Pending())
	require.Equal(t, StatusPlaying, tr.Status())

	require.Equal(t, 1, sched.Fire())
	require.Equal(t, []string{"Rxe8"}, tr.OpponentSans())
	require.Equal(t, 3, tr.LedgerLen())

	_, err = tr.Drop("e1", "e8", "")
	require.ErrorIs(t, err, ErrNoScriptedMove)
	requireConsistent(t, tr)
}

func TestDropPlaysScriptedPromotion(t *testing.T) {
	promo := func(t *testing.T) puzzle.Puzzle {
		return puzzle.Puzzle{ID: "p", FEN: "k7/4P3/8/8/8/8/7r/K7 w - - 0 1", MateIn: 2, Solution: squares(t, "e7-e8q", "a8-a7", "e8-e7")}
	}

	tr, sched := newTrainer(t, promo(t))
	ok, err := tr.Drop("e7", "e8", "n")
	require.ErrorIs(t, err, ErrOffScript)
	require.False(t, ok)
	require.Equal(t, 1, tr.LedgerLen())
	require.Equal(t, 0, sched.Pending())

	for _, letter := range []string{"", "q", "Q"} {
		tr, sched := newTrainer(t, promo(t))
		ok, err := tr.Drop("e7", "e8", letter)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []string{"e8=Q+"}, tr.UserSans())
		require.Equal(t, 1, sched.Fire())
		require.Equal(t, []string{"Ka7"}, tr.OpponentSans())
		requireConsistent(t, tr)
	}
}

func TestDropRejectedWhenMatedOrPastScript(t *testing.T) {
	tr, _ := newTrainer(t, backRankInOne(t))
	require.NoError(t, tr.Reveal())
	_, err := tr.Drop("g8", "h8", "")
	require.ErrorIs(t, err, ErrGameOver)

	tr, _ = newTrainer(t, knights(t))
	require.NoError(t, tr.SubmitSlot(0, "Ngf3"))
	_, err = tr.Drop("e8", "e7", "")
	require.ErrorIs(t, err, ErrNoScriptedMove)
}

func TestDropWhileBrowsingTruncates(t *testing.T) {
	tr, sched := newTrainer(t, backRankInTwo(t))
	require.NoError(t, tr.SubmitSlot(0, "Re8+"))
	require.NoError(t, tr.SubmitSlot(1, "Rxe8#"))
	require.Equal(t, 4, tr.LedgerLen())

	cursor := tr.Navigate(First)
	require.Equal(t, 0, cursor)
	ok, err := tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, cursor+2, tr.LedgerLen())
	require.Equal(t, []string{"Re8+"}, tr.UserSans())
	require.Empty(t, tr.OpponentSans())
	require.Equal(t, []string{"Re8+", ""}, tr.Slots())
	require.Equal(t, StatusPlaying, tr.Status())
	requireConsistent(t, tr)

	sched.Fire()
	require.Equal(t, 3, tr.LedgerLen())
}

func TestRejectedDropWhileBrowsingKeepsFuture(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	require.NoError(t, tr.Reveal())
	before := tr.Ledger()
	tr.Navigate(First)

	ok, err := tr.Drop("e2", "e3", "")
	require.ErrorIs(t, err, ErrOffScript)
	require.False(t, ok)
	require.Equal(t, before, tr.Ledger())
	require.Equal(t, StatusWon, tr.Status())
}

func TestHintRoundsToUserPly(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	h, err := tr.Hint()
	require.NoError(t, err)
	require.Equal(t, 0, h.Index)
	require.Equal(t, "e2-e8", h.Move)
	require.NotEmpty(t, h.Reasoning)
	require.Equal(t, map[string]string{"e2": HighlightStyle, "e8": HighlightStyle}, tr.Highlights())

	require.NoError(t, tr.SubmitSlot(0, "Re8+"))
	require.Nil(t, tr.Highlights())
	h, err = tr.Hint()
	require.NoError(t, err)
	require.Equal(t, 2, h.Index)
	require.Equal(t, "e1-e8", h.Move)

	tr.Navigate(Prev)
	h, err = tr.Hint()
	require.NoError(t, err)
	require.Equal(t, 2, h.Index)

	require.NoError(t, tr.Reveal())
	_, err = tr.Hint()
	require.ErrorIs(t, err, ErrNoMoreHints)
}

func TestHintNotationMoveHasNoHighlight(t *testing.T) {
	p := backRankInOne(t)
	p.Solution = puzzle.NewSolution(puzzle.Notation("Ra8#"))
	tr, _ := newTrainer(t, p)
	h, err := tr.Hint()
	require.NoError(t, err)
	require.Equal(t, "Ra8#", h.Move)
	require.Empty(t, h.From)
	require.Nil(t, tr.Highlights())
}

func TestRevealIsIdempotent(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	require.NoError(t, tr.Reveal())
	led, users, opps := tr.Ledger(), tr.UserSans(), tr.OpponentSans()
	require.Equal(t, []string{"Re8+", "Rxe8#"}, users)
	require.Equal(t, []string{"Rxe8"}, opps)
	require.Equal(t, StatusWon, tr.Status())
	require.True(t, tr.Revealed())
	require.Equal(t, 3, tr.Cursor())

	require.NoError(t, tr.Reveal())
	require.Equal(t, led, tr.Ledger())
	require.Equal(t, users, tr.UserSans())
	require.Equal(t, opps, tr.OpponentSans())
	requireConsistent(t, tr)
}

func TestRevealBrokenLineLeavesStateAlone(t *testing.T) {
	p := backRankInTwo(t)
	p.Solution = squares(t, "e2-e8", "d8-e8", "a1-a2")
	tr, _ := newTrainer(t, p)
	require.NoError(t, tr.SubmitSlot(0, "Re8+"))
	before := tr.Snapshot()

	require.ErrorIs(t, tr.Reveal(), ErrIllegalMove)
	require.Equal(t, before.Ledger, tr.Ledger())
	require.Equal(t, StatusPlaying, tr.Status())
}

func TestNavigateRoundTrip(t *testing.T) {
	tr, _ := newTrainer(t, backRankInTwo(t))
	require.NoError(t, tr.Reveal())
	start := tr.Cursor()
	led := tr.Ledger()

	require.Equal(t, 0, tr.Navigate(First))
	require.Equal(t, 0, tr.Navigate(Prev))
	require.Equal(t, 1, tr.Navigate(Next))
	require.False(t, tr.AtLiveEdge())
	user, opp := tr.VisibleSans()
	require.Equal(t, []string{"Re8+"}, user)
	require.Empty(t, opp)
	from, to := tr.DisplayedMove()
	require.Equal(t, "e2", from)
	require.Equal(t, "e8", to)

	require.Equal(t, start, tr.Navigate(Last))
	require.Equal(t, start, tr.Navigate(Next))
	require.Equal(t, led, tr.Ledger())
	require.True(t, tr.AtLiveEdge())
}

func TestPendingReplyDiscardedAfterNavigation(t *testing.T) {
	replies := 0
	sched := NewManualScheduler()
	tr, err := New(backRankInTwo(t), rules.New(), WithScheduler(sched), WithOnReply(func(*Trainer) { replies++ }))
	require.NoError(t, err)

	ok, err := tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	require.True(t, ok)

	tr.Navigate(First)
	require.Equal(t, 0, sched.Pending())
	require.Equal(t, 1, sched.FireStale())
	require.Equal(t, 2, tr.LedgerLen())
	require.Equal(t, 0, replies)

	// Returning to the live edge resumes the opponent's turn.
	tr.Navigate(Last)
	require.Equal(t, 1, sched.Pending())
	require.Equal(t, 1, sched.Fire())
	require.Equal(t, 3, tr.LedgerLen())
	require.Equal(t, 1, replies)
	requireConsistent(t, tr)
}

func TestPendingReplyDiscardedAfterReveal(t *testing.T) {
	tr, sched := newTrainer(t, backRankInTwo(t))
	_, err := tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	require.NoError(t, tr.Reveal())
	led := tr.Ledger()

	sched.FireStale()
	require.Equal(t, led, tr.Ledger())
	requireConsistent(t, tr)
}

func TestReplyDelay(t *testing.T) {
	sched := NewManualScheduler()
	tr, err := New(backRankInTwo(t), rules.New(), WithScheduler(sched), WithReplyDelay(750*time.Millisecond))
	require.NoError(t, err)
	_, err = tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, sched.LastDelay())
}

func TestResetClearsEverything(t *testing.T) {
	tr, sched := newTrainer(t, backRankInTwo(t))
	_, err := tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	_, _ = tr.Hint()
	tr.Reset()
	require.Equal(t, 0, sched.Pending())
	require.Equal(t, 1, tr.LedgerLen())
	require.Equal(t, []string{"", ""}, tr.Slots())
	require.Nil(t, tr.Highlights())
	require.Equal(t, StatusPlaying, tr.Status())
}

func TestSnapshotRestore(t *testing.T) {
	p := backRankInTwo(t)
	tr, _ := newTrainer(t, p)
	_, err := tr.Drop("e2", "e8", "")
	require.NoError(t, err)
	st := tr.Snapshot()

	sched := NewManualScheduler()
	restored, err := Restore(p, st, rules.New(), WithScheduler(sched))
	require.NoError(t, err)
	require.Equal(t, st, restored.Snapshot())
	require.Equal(t, 1, sched.Pending())
	sched.Fire()
	require.Equal(t, 3, restored.LedgerLen())

	bad := st
	bad.Ledger = bad.Ledger[:1]
	_, err = Restore(p, bad, nil)
	require.ErrorIs(t, err, ErrInvalidState)

	bad = st
	bad.PuzzleID = "other"
	_, err = Restore(p, bad, nil)
	require.ErrorIs(t, err, ErrInvalidState)
}
