package irisfast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Client is the HTTP side of the Iris gateway: the /config probe and /reply.
// Replies go out once; only the read-only probe is retried.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	timeout       time.Duration
	probeAttempts int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithDial replaces the TCP dialer, mostly for in-memory tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

// WithRetry sets how many times GetConfig tries before giving up.
func WithRetry(attempts int) Option {
	return func(c *Client) { c.probeAttempts = attempts }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		timeout:       10 * time.Second,
		probeAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.probeAttempts < 1 {
		c.probeAttempts = 1
	}
	return c
}

// StatusError is a non-2xx answer from Iris.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("iris api error: status=%d body=%s", e.Code, e.Body)
}

func (e *StatusError) temporary() bool {
	switch e.Code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	var err error
	for attempt := 1; attempt <= c.probeAttempts; attempt++ {
		err = c.call(ctx, fasthttp.MethodGet, "/config", nil, &cfg)
		if err == nil {
			return &cfg, nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.temporary() {
			return nil, err
		}
		if attempt == c.probeAttempts {
			break
		}
		if werr := wait(ctx, backoffDuration(attempt)); werr != nil {
			return nil, err
		}
	}
	return nil, err
}

func (c *Client) SendMessage(ctx context.Context, room, message string) error {
	return c.reply(ctx, "text", room, message)
}

func (c *Client) SendImage(ctx context.Context, room, imageBase64 string) error {
	return c.reply(ctx, "image", room, imageBase64)
}

func (c *Client) reply(ctx context.Context, kind, room, data string) error {
	return c.call(ctx, fasthttp.MethodPost, "/reply", ReplyRequest{Type: kind, Room: room, Data: data}, nil)
}

// call performs a single JSON round trip.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		req.SetBody(payload)
	}

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return &StatusError{Code: code, Body: truncate(string(resp.Body()), 512)}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDuration doubles from 100ms and stops growing after six attempts.
func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
