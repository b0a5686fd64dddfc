package irisfast

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Egress abstracts message/image sending over HTTP or WebSocket.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
	SendImage(ctx context.Context, room, imageBase64 string) error
}

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
	transportAuto transportMode = "auto"
)

// frameWriter is satisfied by *WebSocket.
type frameWriter interface {
	Connected() bool
	WriteJSON(ctx context.Context, v any) error
}

// NewEgress creates an Egress based on mode. In auto mode WS is preferred
// while connected and a failed WS write falls back to HTTP once.
func NewEgress(mode string, dryrun bool, c *Client, ws *WebSocket, logger *zap.Logger) Egress {
	if logger == nil {
		logger = zap.NewNop()
	}
	var w frameWriter
	if ws != nil {
		w = ws
	}
	return newEgress(transportMode(mode), dryrun, c, w, logger)
}

func newEgress(mode transportMode, dryrun bool, c *Client, w frameWriter, logger *zap.Logger) Egress {
	switch mode {
	case transportWS:
		return &wsEgress{ws: w, dryrun: dryrun, logger: logger}
	case transportAuto:
		return &autoEgress{ws: &wsEgress{ws: w, dryrun: dryrun, logger: logger}, http: &httpEgress{c: c}, logger: logger}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) SendText(ctx context.Context, room, message string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendMessage(ctx, room, message)
}

func (h *httpEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	if h == nil || h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendImage(ctx, room, imageBase64)
}

// wsEgress writes ReplyRequest frames over WebSocket.
type wsEgress struct {
	ws     frameWriter
	dryrun bool
	logger *zap.Logger
}

func (w *wsEgress) available() bool {
	return w != nil && w.ws != nil && w.ws.Connected()
}

func (w *wsEgress) send(ctx context.Context, kind, room, data string) error {
	if w == nil || w.ws == nil {
		return errors.New("ws egress not available")
	}
	if w.dryrun {
		w.logger.Info("ws_egress_dryrun", zap.String("type", kind), zap.String("room", room))
		return nil
	}
	return w.ws.WriteJSON(ctx, &ReplyRequest{Type: kind, Room: room, Data: data})
}

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	return w.send(ctx, "text", room, message)
}

func (w *wsEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	return w.send(ctx, "image", room, imageBase64)
}

type autoEgress struct {
	ws     *wsEgress
	http   *httpEgress
	logger *zap.Logger
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	if a.ws.available() {
		err := a.ws.SendText(ctx, room, message)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("type", "text"), zap.String("room", room), zap.Error(err))
	}
	return a.http.SendText(ctx, room, message)
}

func (a *autoEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	if a.ws.available() {
		err := a.ws.SendImage(ctx, room, imageBase64)
		if err == nil {
			return nil
		}
		a.logger.Warn("egress_fallback", zap.String("type", "image"), zap.String("room", room), zap.Error(err))
	}
	return a.http.SendImage(ctx, room, imageBase64)
}
