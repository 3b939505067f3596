// Package socket implements the persistent full-duplex transport. One channel
// is opened per job, scoped to a client-generated session identifier, with
// bounded automatic reconnection on abnormal closure.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/007jayesh/parsesaas-go/internal/convert"
	"github.com/007jayesh/parsesaas-go/internal/transport"
)

const (
	defaultURL              = "ws://localhost:8000/ws/convert"
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxReconnects    = 3
	defaultReconnectDelay   = 2 * time.Second
)

type Transport struct {
	baseURL        string
	token          string
	dialer         *websocket.Dialer
	maxReconnects  int
	reconnectDelay time.Duration
}

func New(token string, opts ...Option) *Transport {
	t := &Transport{
		baseURL: defaultURL,
		token:   token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		maxReconnects:  defaultMaxReconnects,
		reconnectDelay: defaultReconnectDelay,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type Option func(*Transport)

func WithURL(url string) Option {
	return func(t *Transport) { t.baseURL = url }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) { t.dialer.HandshakeTimeout = d }
}

func WithReconnectPolicy(maxAttempts int, delay time.Duration) Option {
	return func(t *Transport) {
		t.maxReconnects = maxAttempts
		t.reconnectDelay = delay
	}
}

func (t *Transport) Name() string { return "socket" }

func (t *Transport) Streaming() bool { return true }

// retryState is the reconnection budget for one transport session. The
// counter spans the whole session and never resets, so a flapping channel
// cannot retry forever.
type retryState struct {
	attempts int
	max      int
	delay    time.Duration
}

// wait consumes one attempt after the fixed inter-attempt delay. It returns
// false when the budget is exhausted or ctx ends first.
func (r *retryState) wait(ctx context.Context) bool {
	if r.attempts >= r.max {
		return false
	}
	r.attempts++

	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type outcome int

const (
	outcomeTerminal outcome = iota
	outcomeCancelled
	outcomeNormalClose
	outcomeAbnormal
)

func (t *Transport) Run(ctx context.Context, job *convert.Job, emit func(convert.Event)) error {
	addr := t.baseURL + "/" + job.SessionID
	retry := retryState{max: t.maxReconnects, delay: t.reconnectDelay}
	started := false

	for {
		// DialContext returns only once the open handshake is confirmed, or
		// fails after the handshake timeout.
		conn, res, err := t.dialer.DialContext(ctx, addr, nil)
		if err != nil {
			if res != nil && res.Body != nil {
				_ = res.Body.Close()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !started {
				return fmt.Errorf("open channel: %w", err)
			}
			slog.Warn("reconnect attempt failed", "session", job.SessionID,
				"attempt", retry.attempts, "max", retry.max, "error", err)
			if !retry.wait(ctx) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return transport.ErrReconnectExhausted
			}
			continue
		}

		if !started {
			msg, err := convert.EncodeStart(job, t.token)
			if err != nil {
				_ = conn.Close()
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return fmt.Errorf("send start message: %w", err)
			}
			started = true
			slog.Debug("socket connected", "session", job.SessionID)
		} else {
			slog.Info("socket reconnected", "session", job.SessionID, "attempt", retry.attempts)
		}

		switch t.readLoop(ctx, conn, emit) {
		case outcomeTerminal:
			return nil
		case outcomeCancelled:
			return ctx.Err()
		case outcomeNormalClose:
			// Server closed with the normal code before a terminal event.
			// Normal closure never triggers a reconnect.
			return transport.ErrDisconnected
		case outcomeAbnormal:
			if !retry.wait(ctx) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return transport.ErrReconnectExhausted
			}
		}
	}
}

// readLoop dispatches inbound frames until the channel ends. Cancellation
// closes the channel with the normal-closure code, which the server side must
// treat as an intentional disconnect.
func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, emit func(convert.Event)) outcome {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			t.closeNormal(conn, "client cancelled")
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return outcomeCancelled
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return outcomeNormalClose
			}
			slog.Warn("socket closed abnormally", "error", err)
			return outcomeAbnormal
		}

		ev, err := convert.Decode(data)
		if err != nil {
			if !errors.Is(err, convert.ErrEmptyFrame) {
				slog.Debug("dropping undecodable message", "error", err)
			}
			continue
		}

		emit(*ev)
		if ev.Terminal() {
			t.closeNormal(conn, "conversion finished")
			return outcomeTerminal
		}
	}
}

func (t *Transport) closeNormal(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
