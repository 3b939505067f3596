package transport

import (
	"context"
	"errors"

	"github.com/007jayesh/parsesaas-go/internal/convert"
)

var (
	// ErrDisconnected reports that the carrier closed before a terminal
	// event arrived. The controller surfaces this as a failure.
	ErrDisconnected = errors.New("connection closed before completion")
	// ErrReconnectExhausted reports that the socket transport gave up
	// reconnecting. The job stays non-terminal; only an explicit deadline or
	// user cancellation ends it.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Transport carries one job and delivers decoded events through emit, in
// arrival order, from a single goroutine. Run blocks until a terminal event
// has been emitted, the carrier is gone, or ctx is cancelled.
type Transport interface {
	Name() string
	// Streaming reports whether the transport delivers genuine intermediate
	// events. The controller synthesizes progress for transports that don't.
	Streaming() bool
	Run(ctx context.Context, job *convert.Job, emit func(convert.Event)) error
}
