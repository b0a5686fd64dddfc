package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/adapter/trainerpresenter"
	appcfg "github.com/park285/mate-puzzle-bot/internal/config"
	"github.com/park285/mate-puzzle-bot/internal/irisfast"
	"github.com/park285/mate-puzzle-bot/internal/msgcat"
	"github.com/park285/mate-puzzle-bot/internal/obslog"
	"github.com/park285/mate-puzzle-bot/internal/puzzlebuilder"
	svcpuzzle "github.com/park285/mate-puzzle-bot/internal/service/puzzle"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XUserEmail != "" {
			h["X-User-Email"] = cfg.XUserEmail
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	client := irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(headers))

	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws state", zap.String("state", state.String()))
	})

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog init error", zap.Error(err))
	}

	b := &bot{
		cfg:       cfg,
		presenter: trainerpresenter.NewPresenter(irisfast.NewEgress(cfg.EgressMode, cfg.EgressDryRun, client, ws, logger)),
		formatter: trainerpresenter.NewFormatter(catalog, prefixProvider{prefix: cfg.BotPrefix}),
		logger:    logger,
	}

	deps, err := puzzlebuilder.New(cfg, logger, svcpuzzle.WithReplyListener(b.onReply))
	if err != nil {
		logger.Fatal("puzzle init error", zap.Error(err))
	}
	defer deps.Close()
	b.svc = deps.Service

	ws.OnMessage(func(msg *irisfast.Message) {
		// keep the read loop free
		go b.handleMessage(msg)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		logger.Fatal("ws connect error", zap.Error(err))
	}
	cancel()
	logger.Info("puzzle bot started", zap.String("prefix", cfg.BotPrefix), zap.String("egress", cfg.EgressMode))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = ws.Close(sctx)
}
