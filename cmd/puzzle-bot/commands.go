package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/adapter/trainerpresenter"
	appcfg "github.com/park285/mate-puzzle-bot/internal/config"
	"github.com/park285/mate-puzzle-bot/internal/irisfast"
	svcpuzzle "github.com/park285/mate-puzzle-bot/internal/service/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/trainer"
	"github.com/park285/mate-puzzle-bot/pkg/puzzledto"
)

const (
	puzzleKeyword  = "퍼즐"
	commandTimeout = 15 * time.Second
)

type commandKind int

const (
	cmdHelp commandKind = iota
	cmdStart
	cmdMove
	cmdSlot
	cmdDrop
	cmdNavigate
	cmdHint
	cmdReveal
	cmdStatus
	cmdAbandon
	cmdHistory
	cmdProfile
	cmdPreferred
)

type command struct {
	kind   commandKind
	mateIn int
	slot   int // zero-based
	text   string
	from   string
	to     string
	promo  string
	dir    trainer.Direction
	limit  int
}

var errUsage = errors.New("usage")

var navigateWords = map[string]trainer.Direction{
	"처음": trainer.First,
	"이전": trainer.Prev,
	"다음": trainer.Next,
	"끝":  trainer.Last,
}

var simpleWords = map[string]commandKind{
	"도움말":  cmdHelp,
	"help": cmdHelp,
	"힌트":   cmdHint,
	"정답":   cmdReveal,
	"현황":   cmdStatus,
	"포기":   cmdAbandon,
}

// parsePuzzleArgs turns the words after the puzzle keyword into a command.
// Anything that is not a sub-command is a move for the next slot.
func parsePuzzleArgs(args []string) (command, error) {
	if len(args) == 0 {
		return command{kind: cmdHelp}, nil
	}
	sub := strings.ToLower(strings.TrimSpace(args[0]))
	rest := args[1:]

	if kind, ok := simpleWords[sub]; ok && len(rest) == 0 {
		return command{kind: kind}, nil
	}
	if dir, ok := navigateWords[sub]; ok && len(rest) == 0 {
		return command{kind: cmdNavigate, dir: dir}, nil
	}

	switch sub {
	case "시작":
		c := command{kind: cmdStart}
		if len(rest) > 0 {
			n, err := parseMateIn(rest[0])
			if err != nil {
				return command{}, err
			}
			c.mateIn = n
		}
		return c, nil
	case "칸":
		if len(rest) < 2 {
			return command{}, errUsage
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil || n < 1 {
			return command{}, errUsage
		}
		return command{kind: cmdSlot, slot: n - 1, text: strings.Join(rest[1:], " ")}, nil
	case "드롭":
		if len(rest) < 2 || len(rest) > 3 {
			return command{}, errUsage
		}
		c := command{kind: cmdDrop, from: strings.ToLower(rest[0]), to: strings.ToLower(rest[1])}
		if len(rest) == 3 {
			c.promo = strings.ToLower(rest[2])
		}
		return c, nil
	case "기록":
		c := command{kind: cmdHistory}
		if len(rest) > 0 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 1 {
				return command{}, errUsage
			}
			c.limit = n
		}
		return c, nil
	case "프로필":
		if len(rest) == 0 {
			return command{kind: cmdProfile}, nil
		}
		if rest[0] != "선호" || len(rest) != 2 {
			return command{}, errUsage
		}
		n, err := parseMateIn(rest[1])
		if err != nil {
			return command{}, err
		}
		return command{kind: cmdPreferred, mateIn: n}, nil
	}
	return command{kind: cmdMove, text: strings.Join(args, " ")}, nil
}

func parseMateIn(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(raw), "수"))
	if err != nil || n < 0 {
		return 0, svcpuzzle.ErrInvalidMateIn
	}
	return n, nil
}

type bot struct {
	cfg       *appcfg.AppConfig
	svc       *svcpuzzle.Service
	presenter *trainerpresenter.Presenter
	formatter *trainerpresenter.Formatter
	logger    *zap.Logger
}

func (b *bot) handleMessage(msg *irisfast.Message) {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return
	}
	if len(b.cfg.AllowedRooms) > 0 && !roomAllowed(b.cfg.AllowedRooms, msg.Room) {
		b.logger.Debug("ignore message from room", zap.String("room", msg.Room))
		return
	}
	text := strings.TrimSpace(msg.Msg)
	if !strings.HasPrefix(text, b.cfg.BotPrefix) {
		return
	}
	parts := strings.Fields(strings.TrimPrefix(text, b.cfg.BotPrefix))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if len(parts) == 0 || strings.EqualFold(parts[0], "help") {
		b.send(ctx, msg.Room, b.formatter.Help())
		return
	}
	if parts[0] != puzzleKeyword {
		return
	}
	meta := puzzledto.RequestMeta{
		SessionID: sessionIDFor(msg),
		Room:      msg.Room,
		Sender:    senderName(msg),
	}
	b.handlePuzzle(ctx, meta, parts[1:])
}

func (b *bot) handlePuzzle(ctx context.Context, req puzzledto.RequestMeta, args []string) {
	room := req.Room
	cmd, err := parsePuzzleArgs(args)
	if err != nil {
		if errors.Is(err, errUsage) {
			b.send(ctx, room, b.formatter.Help())
			return
		}
		b.fail(ctx, room, err)
		return
	}
	meta := trainerpresenter.ToServiceMeta(req)

	switch cmd.kind {
	case cmdHelp:
		b.send(ctx, room, b.formatter.Help())
	case cmdStart:
		state, err := b.svc.Start(ctx, meta, cmd.mateIn)
		resumed := errors.Is(err, svcpuzzle.ErrSessionInProgress)
		if err != nil && !resumed {
			b.fail(ctx, room, err)
			return
		}
		dto := trainerpresenter.ToDTOState(state)
		b.board(ctx, room, b.formatter.Start(dto, resumed, cmd.mateIn), dto)
	case cmdMove:
		summary, err := b.svc.Submit(ctx, meta, cmd.text)
		b.moveResult(ctx, room, summary, err)
	case cmdSlot:
		summary, err := b.svc.SubmitSlot(ctx, meta, cmd.slot, cmd.text)
		b.moveResult(ctx, room, summary, err)
	case cmdDrop:
		summary, err := b.svc.Drop(ctx, meta, cmd.from, cmd.to, cmd.promo)
		b.moveResult(ctx, room, summary, err)
	case cmdNavigate:
		state, err := b.svc.Navigate(ctx, meta, cmd.dir)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		dto := trainerpresenter.ToDTOState(state)
		b.board(ctx, room, b.formatter.Navigate(dto), dto)
	case cmdHint:
		res, err := b.svc.Hint(ctx, meta)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		hint := trainerpresenter.ToDTOHint(res)
		b.board(ctx, room, b.formatter.Hint(hint), hint.State)
	case cmdReveal:
		state, err := b.svc.Reveal(ctx, meta)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		dto := trainerpresenter.ToDTOState(state)
		b.board(ctx, room, b.formatter.Result(dto, dto.Profile, dto.RatingDelta), dto)
	case cmdStatus:
		state, err := b.svc.Status(ctx, meta)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		dto := trainerpresenter.ToDTOState(state)
		b.board(ctx, room, b.formatter.Status(dto), dto)
	case cmdAbandon:
		state, err := b.svc.Abandon(ctx, meta)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		b.send(ctx, room, b.formatter.Abandon(trainerpresenter.ToDTOState(state)))
	case cmdHistory:
		limit := cmd.limit
		if limit == 0 {
			limit = b.cfg.PuzzleHistoryLimit
		}
		attempts, err := b.svc.History(ctx, meta, limit)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		b.send(ctx, room, b.formatter.History(trainerpresenter.ToDTOAttempts(attempts)))
	case cmdProfile:
		profile, err := b.svc.Profile(ctx, meta)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		b.send(ctx, room, b.formatter.Profile(trainerpresenter.ToDTOProfile(profile)))
	case cmdPreferred:
		profile, err := b.svc.UpdatePreferredMateIn(ctx, meta, cmd.mateIn)
		if err != nil {
			b.fail(ctx, room, err)
			return
		}
		b.send(ctx, room, b.formatter.PreferredUpdated(trainerpresenter.ToDTOProfile(profile)))
	}
}

func (b *bot) moveResult(ctx context.Context, room string, summary *svcpuzzle.MoveSummary, err error) {
	if err != nil {
		b.fail(ctx, room, err)
		return
	}
	dto := trainerpresenter.ToDTOMoveSummary(summary)
	b.board(ctx, room, b.formatter.Move(dto), dto.State)
}

// onReply delivers an opponent reply that landed after the player's move.
func (b *bot) onReply(meta svcpuzzle.SessionMeta, summary *svcpuzzle.MoveSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	dto := trainerpresenter.ToDTOMoveSummary(summary)
	b.board(ctx, meta.Room, b.formatter.Reply(dto), dto.State)
}

func (b *bot) fail(ctx context.Context, room string, err error) {
	derr := trainerpresenter.ToDomainError(err)
	if derr.Code == puzzledto.CodeInternal {
		b.logger.Error("puzzle command failed", zap.String("room", room), zap.Error(err))
	}
	b.send(ctx, room, b.formatter.Error(derr))
}

func (b *bot) send(ctx context.Context, room, text string) {
	if err := b.presenter.Text(ctx, room, text); err != nil {
		b.logger.Warn("send text failed", zap.String("room", room), zap.Error(err))
	}
}

func (b *bot) board(ctx context.Context, room, text string, state *puzzledto.SessionState) {
	if err := b.presenter.Board(ctx, room, text, state); err != nil {
		b.logger.Warn("send board failed", zap.String("room", room), zap.Error(err))
	}
}

func userIDFromMessage(msg *irisfast.Message) string {
	if msg.JSON != nil && msg.JSON.UserID != "" {
		return msg.JSON.UserID
	}
	if msg.Sender != nil {
		return strings.TrimSpace(*msg.Sender)
	}
	return ""
}

func sessionIDFor(msg *irisfast.Message) string {
	uid := userIDFromMessage(msg)
	if uid == "" {
		uid = senderName(msg)
	}
	return fmt.Sprintf("%s:%s", strings.TrimSpace(msg.Room), strings.TrimSpace(uid))
}

// senderName prefers the display name; the HUD label is derived from it.
func senderName(msg *irisfast.Message) string {
	if msg.Sender != nil && strings.TrimSpace(*msg.Sender) != "" {
		return strings.TrimSpace(*msg.Sender)
	}
	if msg.JSON != nil && strings.TrimSpace(msg.JSON.UserID) != "" {
		return strings.TrimSpace(msg.JSON.UserID)
	}
	return "player"
}

func roomAllowed(allowed []string, room string) bool {
	for _, r := range allowed {
		if r == room {
			return true
		}
	}
	return false
}

type prefixProvider struct{ prefix string }

func (p prefixProvider) Prefix() string { return p.prefix }
