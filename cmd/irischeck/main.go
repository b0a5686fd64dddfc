package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/park285/mate-puzzle-bot/internal/irisfast"
	"github.com/park285/mate-puzzle-bot/internal/obslog"
)

func main() {
	room := flag.String("room", "", "send a probe message to this room")
	egress := flag.String("egress", "http", "probe transport: http, ws or auto")
	watch := flag.Duration("watch", 10*time.Second, "how long to print WS events")
	flag.Parse()

	logger, err := obslog.New(obslog.Options{Format: "console", Console: os.Stdout})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	baseURL := os.Getenv("IRIS_BASE_URL")
	wsURL := os.Getenv("IRIS_WS_URL")
	if baseURL == "" {
		logger.Fatal("IRIS_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if v := os.Getenv("X_USER_ID"); v != "" {
			m["X-User-Id"] = v
		}
		if v := os.Getenv("X_USER_EMAIL"); v != "" {
			m["X-User-Email"] = v
		}
		if v := os.Getenv("X_SESSION_ID"); v != "" {
			m["X-Session-Id"] = v
		}
		return m
	}

	client := irisfast.NewClient(baseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		logger.Warn("/config failed", zap.Error(err))
	} else {
		logger.Info("/config ok",
			zap.String("bot", cfg.BotName),
			zap.Int("port", cfg.Port),
			zap.Int("polling", cfg.PollingSpeed),
			zap.Int("rate", cfg.MessageRate),
			zap.String("endpoint", cfg.WebserverEndpoint),
		)
	}

	var ws *irisfast.WebSocket
	if wsURL == "" {
		logger.Info("IRIS_WS_URL not set; skipping WS check")
	} else {
		ws = irisfast.NewWebSocket(wsURL, 0, time.Second)
		ws.SetHeaderProvider(headers)
		ws.OnStateChange(func(state irisfast.WebSocketState) {
			logger.Info("ws state", zap.String("state", state.String()))
		})
		ws.OnMessage(func(msg *irisfast.Message) {
			from := "?"
			if msg.Sender != nil {
				from = *msg.Sender
			}
			logger.Info("ws message", zap.String("room", msg.Room), zap.String("from", from), zap.String("text", msg.Msg))
		})

		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ws.Connect(cctx)
		ccancel()
		if err != nil {
			logger.Warn("ws connect failed", zap.Error(err))
			ws = nil
		}
	}

	if *room != "" {
		out := irisfast.NewEgress(*egress, false, client, ws, logger)
		pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := out.SendText(pctx, *room, "irischeck probe"); err != nil {
			logger.Warn("probe send failed", zap.String("room", *room), zap.Error(err))
		} else {
			logger.Info("probe sent", zap.String("room", *room), zap.String("egress", *egress))
		}
		pcancel()
	}

	if ws != nil {
		time.Sleep(*watch)
		_ = ws.Close(context.Background())
	}
}
