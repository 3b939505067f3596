// Package controller owns the job state machine the UI layer drives and
// observes. Exactly one job is active per controller; every transport event
// is mapped onto one unified lifecycle:
//
//	idle → submitting → active → {completed, failed, cancelled}
//
// The three outcomes are terminal and mutually exclusive.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/007jayesh/parsesaas-go/internal/convert"
	"github.com/007jayesh/parsesaas-go/internal/transport"
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateActive     State = "active"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

const (
	defaultTick = time.Second

	// Synthetic progress stalls here until a genuine terminal response
	// arrives, so the UI never sees a false "complete".
	simulatedCap = 90

	maxLiveOutputLines = 50
)

const genericFailure = "conversion failed"

// Snapshot is the observable job state handed to the UI layer. Result is
// immutable once set.
type Snapshot struct {
	State             State
	Stage             string
	StageIndex        int
	Percent           float64
	CurrentPage       int
	TotalPages        int
	TransactionsFound int
	LiveOutput        []string
	Error             string
	Result            *convert.Result
}

type Controller struct {
	mu        sync.Mutex
	snap      Snapshot
	gen       int
	cancelJob context.CancelFunc
	deadline  *time.Timer
	doneCh    chan struct{}

	jobTimeout time.Duration
	tick       time.Duration
	notify     func(Snapshot)
}

func New(opts ...Option) *Controller {
	c := &Controller{
		snap: Snapshot{State: StateIdle},
		tick: defaultTick,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Option func(*Controller)

// WithJobTimeout bounds a whole job: when it elapses before a terminal event,
// the job fails. Zero disables the deadline, and a stuck transport then leaves
// the job active indefinitely.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Controller) { c.jobTimeout = d }
}

// WithTickInterval sets the synthetic-progress tick. Intended for tests.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// WithNotify registers a callback invoked after every observable state
// change, with a copy of the snapshot.
func WithNotify(fn func(Snapshot)) Option {
	return func(c *Controller) { c.notify = fn }
}

// Snapshot returns a copy of the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

// Done returns a channel closed when the current job reaches a terminal
// state. Note that a socket transport whose reconnect budget is exhausted
// leaves the job active; without a job timeout the channel stays open until
// Cancel.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doneCh == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.doneCh
}

// Start attaches a transport and begins the job. A job already in flight is
// cancelled first: its transport is released and its terminal state becomes
// cancelled before the new transport is constructed.
func (c *Controller) Start(ctx context.Context, job *convert.Job, t transport.Transport) {
	c.mu.Lock()
	if !c.snap.State.Terminal() && c.snap.State != StateIdle {
		slog.Info("cancelling previous job before starting a new one")
		c.enterTerminalLocked(StateCancelled, "")
	}
	if c.cancelJob != nil {
		c.cancelJob()
	}

	c.gen++
	gen := c.gen
	c.snap = Snapshot{State: StateSubmitting}
	c.doneCh = make(chan struct{})

	jobCtx, cancel := context.WithCancel(ctx)
	c.cancelJob = cancel

	if c.jobTimeout > 0 {
		c.deadline = time.AfterFunc(c.jobTimeout, func() {
			c.failIfNonTerminal(gen, "job timed out")
		})
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)

	slog.Info("starting job", "session", job.SessionID, "transport", t.Name(),
		"file", job.FileName, "formats", job.Formats, "mode", job.Mode)

	go c.run(jobCtx, cancel, gen, job, t)
}

// Cancel ends the current job on the user's behalf. The state transition is
// synchronous; the transport teardown (aborting the request, closing the
// channel with the normal-closure code) completes asynchronously, and any
// events that still arrive from it are discarded.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.snap.State != StateSubmitting && c.snap.State != StateActive {
		c.mu.Unlock()
		return
	}
	c.enterTerminalLocked(StateCancelled, "")
	cancel := c.cancelJob
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	slog.Info("job cancelled by user")
	c.emit(snap)
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen int, job *convert.Job, t transport.Transport) {
	defer cancel()

	c.transition(gen, func(s *Snapshot) { s.State = StateActive })

	if !t.Streaming() {
		go c.simulate(ctx, gen)
	}

	err := t.Run(ctx, job, func(ev convert.Event) { c.handleEvent(gen, ev) })

	switch {
	case err == nil:
		// The transport finished cleanly; if it never produced a terminal
		// event, that is an anomaly, not a success.
		c.failIfNonTerminal(gen, genericFailure)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Cancellation or supersession; state is already settled.
	case errors.Is(err, transport.ErrReconnectExhausted):
		// Deliberately non-terminal: the job is stuck until the deadline
		// fires or the user cancels.
		slog.Warn("transport gave up reconnecting; job left non-terminal",
			"session", job.SessionID)
	default:
		msg := err.Error()
		if msg == "" {
			msg = genericFailure
		}
		c.failIfNonTerminal(gen, msg)
	}
}

// handleEvent folds one transport event into the snapshot. Events for a
// superseded or terminal job are dropped unconditionally.
func (c *Controller) handleEvent(gen int, ev convert.Event) {
	c.mu.Lock()
	if gen != c.gen || c.snap.State.Terminal() {
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case convert.EventProgress:
		p := ev.Progress
		if p.Stage != "" {
			c.snap.Stage = p.Stage
		}
		if p.StageIndex != nil {
			c.snap.StageIndex = *p.StageIndex
		}
		// The backend does not guarantee monotonicity; displayed progress
		// never decreases.
		if p.Percent != nil && *p.Percent > c.snap.Percent {
			c.snap.Percent = min(*p.Percent, 100)
		}
		if p.CurrentPage > 0 {
			c.snap.CurrentPage = p.CurrentPage
		}
		if p.TotalPages > 0 {
			c.snap.TotalPages = p.TotalPages
		}
		if p.TransactionsFound > 0 {
			c.snap.TransactionsFound = p.TransactionsFound
		}
	case convert.EventLiveOutput:
		c.snap.LiveOutput = append(c.snap.LiveOutput, ev.Output.Content)
		if len(c.snap.LiveOutput) > maxLiveOutputLines {
			c.snap.LiveOutput = c.snap.LiveOutput[len(c.snap.LiveOutput)-maxLiveOutputLines:]
		}
		if ev.Output.Page > 0 {
			c.snap.CurrentPage = ev.Output.Page
		}
	case convert.EventError:
		msg := ev.Message
		if msg == "" {
			msg = genericFailure
		}
		c.enterTerminalLocked(StateFailed, msg)
	case convert.EventCompletion:
		c.snap.Result = ev.Result
		c.snap.Percent = 100
		c.enterTerminalLocked(StateCompleted, "")
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

// simulate advances a synthetic progression for transports with no genuine
// intermediate events. It is bounded below 100 and cleared the instant a
// true terminal response lands.
func (c *Controller) simulate(ctx context.Context, gen int) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if gen != c.gen || c.snap.State != StateActive {
			c.mu.Unlock()
			return
		}
		if c.snap.Stage == "" {
			c.snap.Stage = "processing"
		}
		next := min(c.snap.Percent+2+rand.Float64()*5, simulatedCap)
		if next > c.snap.Percent {
			c.snap.Percent = next
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.emit(snap)
	}
}

func (c *Controller) transition(gen int, f func(*Snapshot)) {
	c.mu.Lock()
	if gen != c.gen || c.snap.State.Terminal() {
		c.mu.Unlock()
		return
	}
	f(&c.snap)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.emit(snap)
}

func (c *Controller) failIfNonTerminal(gen int, msg string) {
	c.mu.Lock()
	if gen != c.gen || c.snap.State.Terminal() {
		c.mu.Unlock()
		return
	}
	c.enterTerminalLocked(StateFailed, msg)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	slog.Warn("job failed", "error", msg)
	c.emit(snap)
}

// enterTerminalLocked performs the single allowed transition into a terminal
// state and releases the job's timers and waiters.
func (c *Controller) enterTerminalLocked(state State, msg string) {
	c.snap.State = state
	c.snap.Error = msg
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
	if c.doneCh != nil {
		close(c.doneCh)
		c.doneCh = nil
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := c.snap
	snap.LiveOutput = slices.Clone(c.snap.LiveOutput)
	return snap
}

func (c *Controller) emit(snap Snapshot) {
	if c.notify != nil {
		c.notify(snap)
	}
}
