package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/adapter/trainerpresenter"
	appcfg "github.com/park285/mate-puzzle-bot/internal/config"
	"github.com/park285/mate-puzzle-bot/internal/irisfast"
	"github.com/park285/mate-puzzle-bot/internal/msgcat"
	"github.com/park285/mate-puzzle-bot/internal/puzzlebuilder"
	svcpuzzle "github.com/park285/mate-puzzle-bot/internal/service/puzzle"
	"github.com/park285/mate-puzzle-bot/internal/trainer"
)

func TestParsePuzzleArgs(t *testing.T) {
	cases := []struct {
		args []string
		want command
	}{
		{nil, command{kind: cmdHelp}},
		{[]string{"시작"}, command{kind: cmdStart}},
		{[]string{"시작", "2수"}, command{kind: cmdStart, mateIn: 2}},
		{[]string{"Qh7+"}, command{kind: cmdMove, text: "Qh7+"}},
		{[]string{"e2", "-", "e4"}, command{kind: cmdMove, text: "e2 - e4"}},
		{[]string{"칸", "2", "Rxe8#"}, command{kind: cmdSlot, slot: 1, text: "Rxe8#"}},
		{[]string{"드롭", "E7", "e8", "Q"}, command{kind: cmdDrop, from: "e7", to: "e8", promo: "q"}},
		{[]string{"이전"}, command{kind: cmdNavigate, dir: trainer.Prev}},
		{[]string{"끝"}, command{kind: cmdNavigate, dir: trainer.Last}},
		{[]string{"힌트"}, command{kind: cmdHint}},
		{[]string{"정답"}, command{kind: cmdReveal}},
		{[]string{"기록", "3"}, command{kind: cmdHistory, limit: 3}},
		{[]string{"프로필"}, command{kind: cmdProfile}},
		{[]string{"프로필", "선호", "0"}, command{kind: cmdPreferred}},
	}
	for _, tc := range cases {
		got, err := parsePuzzleArgs(tc.args)
		require.NoError(t, err, "%v", tc.args)
		require.Equal(t, tc.want, got, "%v", tc.args)
	}
}

func TestParsePuzzleArgsErrors(t *testing.T) {
	_, err := parsePuzzleArgs([]string{"칸", "0", "Re8"})
	require.ErrorIs(t, err, errUsage)
	_, err = parsePuzzleArgs([]string{"드롭", "e2"})
	require.ErrorIs(t, err, errUsage)
	_, err = parsePuzzleArgs([]string{"시작", "two"})
	require.ErrorIs(t, err, svcpuzzle.ErrInvalidMateIn)
	_, err = parsePuzzleArgs([]string{"프로필", "삭제"})
	require.ErrorIs(t, err, errUsage)
}

type chatLog struct {
	mu     sync.Mutex
	texts  []string
	images int
}

func (c *chatLog) SendText(_ context.Context, _ string, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, message)
	return nil
}

func (c *chatLog) SendImage(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images++
	return nil
}

func (c *chatLog) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		return ""
	}
	return c.texts[len(c.texts)-1]
}

func newTestBot(t *testing.T) (*bot, *chatLog) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := &appcfg.AppConfig{
		BotPrefix:           "!",
		RedisURL:            fmt.Sprintf("redis://%s/0", mr.Addr()),
		PuzzleSessionTTLSec: 60,
		PuzzleHistoryLimit:  5,
		PuzzleReplyDelayMS:  10,
	}
	cat, err := msgcat.New("")
	require.NoError(t, err)
	log := &chatLog{}
	b := &bot{
		cfg:       cfg,
		presenter: trainerpresenter.NewPresenter(log),
		formatter: trainerpresenter.NewFormatter(cat, prefixProvider{prefix: "!"}),
		logger:    zap.NewNop(),
	}
	deps, err := puzzlebuilder.New(cfg, nil, svcpuzzle.WithReplyListener(b.onReply))
	require.NoError(t, err)
	t.Cleanup(deps.Close)
	b.svc = deps.Service
	return b, log
}

func say(b *bot, text string) {
	sender := "앨리스"
	b.handleMessage(&irisfast.Message{Msg: text, Room: "room-1", Sender: &sender, JSON: &irisfast.MessageJSON{UserID: "u1"}})
}

func TestBotPuzzleFlow(t *testing.T) {
	b, log := newTestBot(t)

	say(b, "!퍼즐 현황")
	require.Contains(t, log.last(), "진행 중인 퍼즐이 없습니다")

	say(b, "!퍼즐 시작 2")
	require.Contains(t, log.last(), "2수 메이트")
	require.Equal(t, 1, log.images)

	say(b, "!퍼즐 시작 2")
	require.Contains(t, log.last(), "진행 중인 퍼즐을 불러왔습니다")

	say(b, "!퍼즐 Rxe9")
	require.Contains(t, log.last(), "수 표기를 이해하지 못했습니다")

	say(b, "!퍼즐 칸 3 Re8")
	require.Contains(t, log.last(), "해당 번호의 수는 없습니다")

	say(b, "!퍼즐 힌트")
	require.Contains(t, log.last(), "힌트: e2-e8")

	say(b, "!퍼즐 정답")
	require.Contains(t, log.last(), "정답: 1.")

	say(b, "!퍼즐 기록")
	require.Contains(t, log.last(), "📖 정답 확인")

	say(b, "!퍼즐 프로필 선호 2")
	require.Contains(t, log.last(), "2수 메이트로 설정")
}

func TestBotIgnoresOtherRoomsAndCommands(t *testing.T) {
	b, log := newTestBot(t)
	b.cfg.AllowedRooms = []string{"elsewhere"}

	say(b, "!퍼즐 시작")
	require.Empty(t, log.last())

	b.cfg.AllowedRooms = nil
	say(b, "!체스 시작")
	say(b, "퍼즐 시작")
	require.Empty(t, log.last())

	say(b, "!help")
	require.True(t, strings.HasPrefix(log.last(), "♞ 메이트 퍼즐 명령어 안내"))
}

func TestSessionIdentity(t *testing.T) {
	name := " 밥 "
	msg := &irisfast.Message{Room: "r", Sender: &name}
	require.Equal(t, "r:밥", sessionIDFor(msg))
	require.Equal(t, "밥", senderName(msg))

	msg.JSON = &irisfast.MessageJSON{UserID: "42"}
	require.Equal(t, "r:42", sessionIDFor(msg))
	require.Equal(t, "밥", senderName(msg))
}
