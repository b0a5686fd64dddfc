package trainerpresenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/mate-puzzle-bot/internal/msgcat"
	"github.com/park285/mate-puzzle-bot/internal/util"
	"github.com/park285/mate-puzzle-bot/pkg/puzzledto"
)

// PrefixProvider exposes the Prefix that Kakao messages should use.
type PrefixProvider interface {
	Prefix() string
}

// Formatter renders puzzle DTOs into Kakao-friendly text blocks using the
// message catalog.
type Formatter struct {
	catalog        *msgcat.Catalog
	prefixProvider PrefixProvider
}

func NewFormatter(catalog *msgcat.Catalog, provider PrefixProvider) *Formatter {
	return &Formatter{catalog: catalog, prefixProvider: provider}
}

func (f *Formatter) Prefix() string {
	if f == nil || f.prefixProvider == nil {
		return ""
	}
	return strings.TrimSpace(f.prefixProvider.Prefix())
}

// text renders key, falling back to the key itself so a broken override
// never swallows a reply.
func (f *Formatter) text(key string, data map[string]any) string {
	if f == nil || f.catalog == nil {
		return key
	}
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Prefix"]; !ok {
		data["Prefix"] = f.Prefix()
	}
	out, err := f.catalog.Render(key, data)
	if err != nil {
		return key
	}
	return out
}

func (f *Formatter) Help() string {
	title := f.text("help.title", nil)
	return util.ApplySeeMoreWithHeader(f.text("help.body", nil), title, title, "")
}

func (f *Formatter) Start(state *puzzledto.SessionState, resumed bool, requested int) string {
	if state == nil {
		return f.Error(&puzzledto.DomainError{Code: puzzledto.CodeNoSession})
	}
	key := "start.new"
	if resumed {
		key = "start.resumed"
	}
	lines := []string{f.text(key, map[string]any{
		"Number": state.PuzzleNumber,
		"Count":  state.PuzzleCount,
		"MateIn": state.MateIn,
		"Side":   f.side(state.SideToMove),
	})}
	if d := strings.TrimSpace(state.Description); d != "" {
		lines = append(lines, f.text("start.description", map[string]any{"Text": d}))
	}
	if state.FilterFallback && requested > 0 {
		lines = append(lines, f.text("start.fallback", map[string]any{"Requested": requested}))
	}
	if resumed {
		lines = append(lines, f.statusLines(state)...)
	}
	lines = append(lines, "", f.text("start.usage", nil))
	return strings.Join(lines, "\n")
}

func (f *Formatter) Status(state *puzzledto.SessionState) string {
	if state == nil {
		return f.Error(&puzzledto.DomainError{Code: puzzledto.CodeNoSession})
	}
	lines := []string{
		f.text("status.title", nil),
		f.text("status.puzzle", map[string]any{"Number": state.PuzzleNumber, "ID": state.PuzzleID, "MateIn": state.MateIn}),
	}
	lines = append(lines, f.statusLines(state)...)
	if badge := f.badge(state.Result); badge != "" {
		lines = append(lines, f.text("status.finished", map[string]any{"Badge": badge}))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) statusLines(state *puzzledto.SessionState) []string {
	lines := []string{f.text("status.progress", map[string]any{
		"Played": state.Played,
		"Total":  state.SolutionLen,
		"Cursor": state.Cursor,
	})}
	if slots := formatSlots(state.Slots); slots != "" {
		lines = append(lines, f.text("status.slots", map[string]any{"Slots": slots}))
	}
	if state.ReplyPending {
		lines = append(lines, f.text("status.waiting", nil))
	}
	if state.HintsUsed > 0 {
		lines = append(lines, f.text("status.hints", map[string]any{"Count": state.HintsUsed}))
	}
	return lines
}

// Move acknowledges an accepted move. Finished lines get the result block.
func (f *Formatter) Move(summary *puzzledto.MoveSummary) string {
	if summary == nil || summary.State == nil {
		return ""
	}
	var lines []string
	if summary.Slot > 0 && summary.Input != "" {
		lines = append(lines, f.text("move.accepted", map[string]any{"Slot": summary.Slot, "Input": summary.Input}))
	}
	switch {
	case summary.Finished:
		lines = append(lines, f.Result(summary.State, summary.Profile, summary.RatingDelta))
	case summary.State.ReplyPending:
		lines = append(lines, f.text("move.waiting", nil))
	case summary.State.Status == puzzledto.StatusPlaying:
		lines = append(lines, f.text("move.next", nil))
	}
	return strings.Join(lines, "\n")
}

// Reply announces the opponent's scheduled answer.
func (f *Formatter) Reply(summary *puzzledto.MoveSummary) string {
	if summary == nil || summary.State == nil {
		return ""
	}
	lines := []string{f.text("reply.played", map[string]any{"SAN": summary.ReplySAN})}
	if summary.Finished {
		lines = append(lines, f.Result(summary.State, summary.Profile, summary.RatingDelta))
	} else {
		lines = append(lines, f.text("move.next", nil))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) Result(state *puzzledto.SessionState, profile *puzzledto.Profile, delta int) string {
	if state == nil {
		return ""
	}
	var lines []string
	switch {
	case state.Revealed:
		lines = append(lines, f.text("result.revealed", map[string]any{"Line": formatLine(state.UserSANs, state.OpponentSANs)}))
	case state.Status == puzzledto.StatusWon:
		lines = append(lines, f.text("result.won", map[string]any{"Number": state.PuzzleNumber}))
	case state.Status == puzzledto.StatusLost:
		lines = append(lines, f.text("result.lost", nil))
	}
	if profile != nil {
		lines = append(lines,
			f.text("result.rating", map[string]any{"Rating": profile.Rating, "Delta": formatDelta(delta)}),
			f.text("result.record", map[string]any{"Solved": profile.Solved, "Attempts": profile.Attempts, "Streak": profile.Streak}),
		)
	}
	lines = append(lines, "", f.text("result.next", nil))
	return strings.Join(lines, "\n")
}

func (f *Formatter) Hint(h *puzzledto.Hint) string {
	if h == nil {
		return ""
	}
	lines := []string{f.text("hint.move", map[string]any{"Move": h.Move})}
	if h.From != "" && h.To != "" {
		lines = append(lines, f.text("hint.squares", map[string]any{"From": h.From, "To": h.To}))
	}
	return strings.Join(lines, "\n")
}

func (f *Formatter) Navigate(state *puzzledto.SessionState) string {
	if state == nil {
		return ""
	}
	if state.AtLiveEdge {
		return f.text("navigate.live", nil)
	}
	return f.text("navigate.position", map[string]any{"Cursor": state.Cursor, "Total": state.Played})
}

func (f *Formatter) Abandon(state *puzzledto.SessionState) string {
	if state == nil {
		return ""
	}
	lines := []string{f.text("result.abandoned", map[string]any{"Number": state.PuzzleNumber})}
	if p := state.Profile; p != nil {
		lines = append(lines, f.text("result.rating", map[string]any{"Rating": p.Rating, "Delta": formatDelta(state.RatingDelta)}))
	}
	lines = append(lines, "", f.text("result.next", nil))
	return strings.Join(lines, "\n")
}

func (f *Formatter) History(attempts []*puzzledto.Attempt) string {
	title := f.text("history.title", nil)
	if len(attempts) == 0 {
		return f.text("history.empty", nil)
	}
	lines := []string{title}
	for _, a := range attempts {
		lines = append(lines, f.text("history.line", map[string]any{
			"ID":     a.ID,
			"Badge":  f.badge(a.Result),
			"Date":   formatShortTime(a.EndedAt),
			"Puzzle": a.PuzzleID,
			"MateIn": a.MateIn,
			"Delta":  strings.TrimSpace(formatDelta(a.RatingDelta)),
		}))
		if line := formatLine(a.UserSANs, a.OpponentSANs); line != "" {
			lines = append(lines, f.text("history.moves", map[string]any{"Line": line}))
		}
	}
	return util.ApplySeeMoreWithHeader(strings.Join(lines, "\n"), title, title, "")
}

func (f *Formatter) Profile(profile *puzzledto.Profile) string {
	if profile == nil {
		return f.text("profile.empty", nil)
	}
	title := f.text("profile.title", nil)
	lines := []string{title, f.profileBody(profile)}
	if !profile.LastPlayedAt.IsZero() {
		lines = append(lines, f.text("profile.last", map[string]any{"Date": formatShortTime(profile.LastPlayedAt)}))
	}
	lines = append(lines, "", f.text("result.next", nil))
	return util.ApplySeeMoreWithHeader(strings.Join(lines, "\n"), title, title, "")
}

func (f *Formatter) PreferredUpdated(profile *puzzledto.Profile) string {
	if profile == nil {
		return f.text("profile.empty", nil)
	}
	if profile.PreferredMateIn == 0 {
		return f.text("profile.cleared", nil)
	}
	return f.text("profile.updated", map[string]any{"MateIn": profile.PreferredMateIn})
}

func (f *Formatter) profileBody(p *puzzledto.Profile) string {
	body := f.text("profile.body", map[string]any{
		"Rating":   p.Rating,
		"Attempts": p.Attempts,
		"Solved":   p.Solved,
		"Failed":   p.Failed,
		"Revealed": p.Revealed,
		"Rate":     fmt.Sprintf("%.1f", p.SolveRate),
		"Streak":   p.Streak,
		"Best":     p.BestStreak,
	})
	if p.PreferredMateIn > 0 {
		body += "\n" + f.text("profile.preferred", map[string]any{"MateIn": p.PreferredMateIn})
	}
	return body
}

func (f *Formatter) Error(derr *puzzledto.DomainError) string {
	if derr == nil {
		return ""
	}
	key := "error." + derr.Code
	if f.catalog == nil || !f.catalog.Has(key) {
		key = "error." + puzzledto.CodeInternal
	}
	out := f.text(key, map[string]any{"Slot": derr.Slot})
	if derr.Expected != "" && derr.Code != puzzledto.CodeInternal {
		out += f.text("error.expected", map[string]any{"Expected": derr.Expected})
	}
	return out
}

func (f *Formatter) side(code string) string {
	if code == "b" {
		return f.text("side.black", nil)
	}
	return f.text("side.white", nil)
}

func (f *Formatter) badge(result string) string {
	if result == "" {
		return ""
	}
	key := "badge." + result
	if f.catalog == nil || !f.catalog.Has(key) {
		return result
	}
	return f.text(key, nil)
}

func formatSlots(slots []string) string {
	parts := make([]string, 0, len(slots))
	for i, s := range slots {
		if strings.TrimSpace(s) == "" {
			s = "…"
		}
		parts = append(parts, fmt.Sprintf("%d.%s", i+1, s))
	}
	return strings.Join(parts, " ")
}

// formatLine interleaves user and opponent moves into "1. Qh7+ Kf8 2. Qh8#".
func formatLine(user, opp []string) string {
	var sb strings.Builder
	for i, u := range user {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, u)
		if i < len(opp) {
			sb.WriteByte(' ')
			sb.WriteString(opp[i])
		}
	}
	return sb.String()
}

func formatDelta(delta int) string {
	switch {
	case delta > 0:
		return fmt.Sprintf(" (▲%d)", delta)
	case delta < 0:
		return fmt.Sprintf(" (▼%d)", -delta)
	default:
		return ""
	}
}

func formatShortTime(t time.Time) string {
	return util.FormatKST(t, "01-02 15:04")
}
