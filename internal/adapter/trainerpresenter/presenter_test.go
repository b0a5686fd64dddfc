package trainerpresenter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/park285/mate-puzzle-bot/internal/msgcat"
	svc "github.com/park285/mate-puzzle-bot/internal/service/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/trainer"
	"github.com/park285/mate-puzzle-bot/pkg/puzzledto"
)

type prefix string

func (p prefix) Prefix() string { return string(p) }

type recordingSender struct {
	texts  []string
	images []string
	err    error
}

func (r *recordingSender) SendText(_ context.Context, room, message string) error {
	r.texts = append(r.texts, room+"|"+message)
	return r.err
}

func (r *recordingSender) SendImage(_ context.Context, room, img string) error {
	r.images = append(r.images, room+"|"+img)
	return r.err
}

func newFormatter(t *testing.T) *Formatter {
	t.Helper()
	cat, err := msgcat.New("")
	require.NoError(t, err)
	return NewFormatter(cat, prefix("!"))
}

func TestPresenterBoard(t *testing.T) {
	rec := &recordingSender{}
	p := NewPresenter(rec)

	err := p.Board(context.Background(), "room", "hello", &puzzledto.SessionState{BoardImage: []byte("png")})
	require.NoError(t, err)
	require.Equal(t, []string{"room|hello"}, rec.texts)
	require.Equal(t, []string{"room|" + base64.StdEncoding.EncodeToString([]byte("png"))}, rec.images)

	require.NoError(t, p.Board(context.Background(), "room", "  ", nil))
	require.Len(t, rec.texts, 1)
}

func TestPresenterStopsOnTextError(t *testing.T) {
	rec := &recordingSender{err: errors.New("down")}
	p := NewPresenter(rec)

	err := p.Board(context.Background(), "room", "hello", &puzzledto.SessionState{BoardImage: []byte("png")})
	require.EqualError(t, err, "down")
	require.Empty(t, rec.images)
}

func TestToDomainError(t *testing.T) {
	derr := ToDomainError(fmt.Errorf("submit: %w", &trainer.SlotError{Slot: 1, Text: "Qh7", Expected: "Qg7#", Err: trainer.ErrOffScript}))
	require.Equal(t, puzzledto.CodeOffScript, derr.Code)
	require.Equal(t, 2, derr.Slot)
	require.Equal(t, "Qg7#", derr.Expected)
	require.False(t, derr.Retryable)

	require.Equal(t, puzzledto.CodeNoSession, ToDomainError(svc.ErrSessionNotFound).Code)
	unknown := ToDomainError(errors.New("redis: timeout"))
	require.Equal(t, puzzledto.CodeInternal, unknown.Code)
	require.True(t, unknown.Retryable)
	require.Nil(t, ToDomainError(nil))
}

func TestFormatterError(t *testing.T) {
	f := newFormatter(t)

	out := f.Error(&puzzledto.DomainError{Code: puzzledto.CodeOffScript, Slot: 2, Expected: "Qg7#"})
	require.Equal(t, "2번째 수가 정답 수순과 다릅니다. (정답: Qg7#)", out)

	out = f.Error(&puzzledto.DomainError{Code: puzzledto.CodeOffScript})
	require.True(t, strings.HasPrefix(out, "이 수는"))

	out = f.Error(&puzzledto.DomainError{Code: puzzledto.CodeNoSession})
	require.Contains(t, out, "`!퍼즐 시작`")

	out = f.Error(&puzzledto.DomainError{Code: "weird"})
	require.Contains(t, out, "오류가 발생했습니다")
}

func TestFormatterStartAndMove(t *testing.T) {
	f := newFormatter(t)
	state := &puzzledto.SessionState{
		PuzzleNumber:   3,
		PuzzleCount:    4,
		MateIn:         2,
		SideToMove:     "b",
		Status:         puzzledto.StatusPlaying,
		FilterFallback: true,
		SolutionLen:    3,
	}

	out := f.Start(state, false, 5)
	require.Contains(t, out, "퍼즐 #3/4")
	require.Contains(t, out, "흑 차례")
	require.Contains(t, out, "5수 메이트 퍼즐이 없어")

	state.ReplyPending = true
	out = f.Move(&puzzledto.MoveSummary{State: state, Slot: 1, Input: "Rxe8+"})
	require.Contains(t, out, "1번째 수 Rxe8+ 확인")
	require.Contains(t, out, "상대가 응수를")

	state.ReplyPending = false
	state.Status = puzzledto.StatusWon
	state.UserSANs = []string{"Rxe8+", "Rxe8#"}
	state.OpponentSANs = []string{"Qxe8"}
	profile := &puzzledto.Profile{Rating: 1202, Solved: 1, Attempts: 1, Streak: 1}
	out = f.Reply(&puzzledto.MoveSummary{State: state, ReplySAN: "Qxe8", Finished: true, Profile: profile, RatingDelta: 2})
	require.Contains(t, out, "상대 응수: Qxe8")
	require.Contains(t, out, "체크메이트! 퍼즐 #3 해결")
	require.Contains(t, out, "레이팅 1202 (▲2)")
}

func TestFormatterRevealLine(t *testing.T) {
	f := newFormatter(t)
	state := &puzzledto.SessionState{
		Status:       puzzledto.StatusWon,
		Revealed:     true,
		UserSANs:     []string{"Qh7+", "Qh8#"},
		OpponentSANs: []string{"Kf8"},
	}
	out := f.Result(state, nil, 0)
	require.Contains(t, out, "정답: 1. Qh7+ Kf8 2. Qh8#")
}

func TestFormatterHistoryAndProfile(t *testing.T) {
	f := newFormatter(t)

	require.Equal(t, "아직 기록된 퍼즐이 없습니다.", f.History(nil))

	out := f.History([]*puzzledto.Attempt{{ID: 7, PuzzleID: "m2-001", MateIn: 2, Result: "solved", RatingDelta: -3, UserSANs: []string{"Qh7+"}}})
	require.True(t, strings.HasPrefix(out, "♜ 최근 퍼즐 기록"))
	require.Contains(t, out, "#7 ✅ 해결")
	require.Contains(t, out, "(▼3)")

	out = f.Profile(&puzzledto.Profile{Rating: 1210, Attempts: 4, Solved: 3, SolveRate: 75, PreferredMateIn: 2})
	require.Contains(t, out, "해결률 75.0%")
	require.Contains(t, out, "선호: 2수 메이트")

	require.Contains(t, f.PreferredUpdated(&puzzledto.Profile{}), "해제")
}

func TestFormatterNavigate(t *testing.T) {
	f := newFormatter(t)
	require.Contains(t, f.Navigate(&puzzledto.SessionState{Cursor: 1, Played: 3}), "1/3수 위치")
	require.Contains(t, f.Navigate(&puzzledto.SessionState{AtLiveEdge: true}), "현재 진행 위치")
}

func TestToDTOMoveSummarySlot(t *testing.T) {
	out := ToDTOMoveSummary(&svc.MoveSummary{Slot: -1, ReplySAN: "Kh8", State: &svc.SessionState{Status: trainer.StatusPlaying}})
	require.Equal(t, 0, out.Slot)
	require.Equal(t, puzzledto.StatusPlaying, out.State.Status)
}
