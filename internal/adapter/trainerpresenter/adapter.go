package trainerpresenter

import (
	"errors"

	"github.com/park285/mate-puzzle-bot/internal/domain"
	corepuzzle "github.com/park285/mate-puzzle-bot/internal/puzzle"
	svc "github.com/park285/mate-puzzle-bot/internal/service/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/trainer"
	"github.com/park285/mate-puzzle-bot/pkg/puzzledto"
)

func ToServiceMeta(m puzzledto.RequestMeta) svc.SessionMeta {
	return svc.SessionMeta{SessionID: m.SessionID, Room: m.Room, Sender: m.Sender}
}

func ToDTOState(s *svc.SessionState) *puzzledto.SessionState {
	if s == nil {
		return nil
	}
	out := &puzzledto.SessionState{
		SessionUUID:    s.SessionUUID,
		PlayerName:     s.PlayerName,
		PuzzleID:       s.PuzzleID,
		PuzzleNumber:   s.PuzzleNumber,
		PuzzleCount:    s.PuzzleCount,
		MateIn:         s.MateIn,
		Description:    s.Description,
		FEN:            s.FEN,
		SideToMove:     s.SideToMove,
		Status:         string(s.Status),
		Revealed:       s.Revealed,
		Result:         s.Result,
		Cursor:         s.Cursor,
		Played:         s.Played,
		SolutionLen:    s.SolutionLen,
		AtLiveEdge:     s.AtLiveEdge,
		ReplyPending:   s.ReplyPending,
		Slots:          append([]string(nil), s.Slots...),
		UserSANs:       append([]string(nil), s.UserSANs...),
		OpponentSANs:   append([]string(nil), s.OpponentSANs...),
		HintsUsed:      s.HintsUsed,
		FilterFallback: s.FilterFallback,
		RatingDelta:    s.RatingDelta,
		Profile:        ToDTOProfile(s.Profile),
		BoardImage:     append([]byte(nil), s.BoardImage...),
		StartedAt:      s.StartedAt,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.LastMove != nil {
		out.LastMove = &puzzledto.MoveHighlight{From: s.LastMove.From, To: s.LastMove.To}
	}
	return out
}

func ToDTOMoveSummary(m *svc.MoveSummary) *puzzledto.MoveSummary {
	if m == nil {
		return nil
	}
	return &puzzledto.MoveSummary{
		State:        ToDTOState(m.State),
		Slot:         m.Slot + 1,
		Input:        m.Input,
		Dropped:      m.Dropped,
		ReplyPending: m.ReplyPending,
		ReplySAN:     m.ReplySAN,
		Finished:     m.Finished,
		Profile:      ToDTOProfile(m.Profile),
		RatingDelta:  m.RatingDelta,
	}
}

func ToDTOHint(h *svc.HintResult) *puzzledto.Hint {
	if h == nil {
		return nil
	}
	return &puzzledto.Hint{
		State:     ToDTOState(h.State),
		Move:      h.Hint.Move,
		Reasoning: h.Hint.Reasoning,
		From:      h.Hint.From,
		To:        h.Hint.To,
	}
}

func ToDTOProfile(p *domain.PuzzleProfile) *puzzledto.Profile {
	if p == nil {
		return nil
	}
	return &puzzledto.Profile{
		PreferredMateIn: p.PreferredMateIn,
		Rating:          p.Rating,
		Attempts:        p.Attempts,
		Solved:          p.Solved,
		Failed:          p.Failed,
		Revealed:        p.Revealed,
		Streak:          p.Streak,
		BestStreak:      p.BestStreak,
		SolveRate:       p.SolveRate(),
		LastPuzzleID:    p.LastPuzzleID,
		LastPlayedAt:    p.LastPlayedAt,
	}
}

func ToDTOAttempts(in []*domain.PuzzleAttempt) []*puzzledto.Attempt {
	out := make([]*puzzledto.Attempt, 0, len(in))
	for _, a := range in {
		if a == nil {
			continue
		}
		out = append(out, &puzzledto.Attempt{
			ID:           a.ID,
			PuzzleID:     a.PuzzleID,
			MateIn:       a.MateIn,
			Result:       a.Result,
			UserSANs:     append([]string(nil), a.UserSANs...),
			OpponentSANs: append([]string(nil), a.OpponentSANs...),
			HintsUsed:    a.HintsUsed,
			RatingDelta:  a.RatingDelta,
			EndedAt:      a.EndedAt,
			Duration:     a.Duration,
		})
	}
	return out
}

var errorCodes = []struct {
	err  error
	code string
}{
	{trainer.ErrSyntax, puzzledto.CodeSyntax},
	{trainer.ErrIllegalMove, puzzledto.CodeIllegalMove},
	{trainer.ErrNotationMismatch, puzzledto.CodeNotation},
	{trainer.ErrOffScript, puzzledto.CodeOffScript},
	{trainer.ErrNotCheckmate, puzzledto.CodeNotCheckmate},
	{trainer.ErrNotUserTurn, puzzledto.CodeNotUserTurn},
	{trainer.ErrSlotOutOfRange, puzzledto.CodeSlotOutOfRange},
	{trainer.ErrNoSlotAvailable, puzzledto.CodeNoSlot},
	{trainer.ErrNoScriptedMove, puzzledto.CodeNoSlot},
	{trainer.ErrGameOver, puzzledto.CodeGameOver},
	{trainer.ErrNoMoreHints, puzzledto.CodeNoMoreHints},
	{svc.ErrSessionNotFound, puzzledto.CodeNoSession},
	{svc.ErrSessionInProgress, puzzledto.CodeInProgress},
	{svc.ErrRoomNotAllowed, puzzledto.CodeRoomNotAllowed},
	{svc.ErrInvalidMateIn, puzzledto.CodeInvalidMateIn},
	{svc.ErrProfileNotFound, puzzledto.CodeProfileNotFound},
	{corepuzzle.ErrNoPuzzles, puzzledto.CodeNoPuzzles},
}

// ToDomainError classifies service and trainer errors for the chat layer.
// Unknown errors map to CodeInternal and are marked retryable.
func ToDomainError(err error) *puzzledto.DomainError {
	if err == nil {
		return nil
	}
	out := &puzzledto.DomainError{Code: puzzledto.CodeInternal, Message: err.Error(), Retryable: true}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			out.Code = c.code
			out.Retryable = false
			break
		}
	}
	var slotErr *trainer.SlotError
	if errors.As(err, &slotErr) {
		out.Slot = slotErr.Slot + 1
		out.Expected = slotErr.Expected
	}
	return out
}
