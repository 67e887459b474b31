// ABOUTME: QR pairing flow state machine for connecting an instance
// ABOUTME: Fetches the pairing artifact, polls connection state, enforces a hard ceiling

package pairing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gmaxdesign/evobolt/internal/evolution"
)

// State is the observable state of a pairing flow.
type State string

const (
	// StateConnecting covers artifact fetch and state polling.
	StateConnecting State = "connecting"
	// StateConnected is the terminal success state.
	StateConnected State = "connected"
	// StateError is the terminal failure state, including ceiling expiry.
	StateError State = "error"
)

// ErrTimeout is the flow error after the polling ceiling expires with no
// pairing observed.
var ErrTimeout = errors.New("pairing timed out waiting for the device to scan")

// ErrArtifactFetch wraps a failure to obtain the QR artifact.
var ErrArtifactFetch = errors.New("could not obtain pairing QR code")

// Default timings, matching the dashboard's reference behavior.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultSettleDelay  = 2 * time.Second
	DefaultCeiling      = 5 * time.Minute
)

// Config holds the flow timings. Zero values take the defaults.
type Config struct {
	// PollInterval is the fixed period between connection-state queries.
	PollInterval time.Duration
	// SettleDelay is the pause between observing the paired state and
	// invoking the success callback.
	SettleDelay time.Duration
	// Ceiling bounds how long polling may run after the artifact is
	// obtained. Expiry is a terminal error, not a silent stop.
	Ceiling time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Ceiling == 0 {
		c.Ceiling = DefaultCeiling
	}
	return c
}

// Gateway is the slice of the remote client the flow consumes.
type Gateway interface {
	Connect(ctx context.Context, instanceName string) (*evolution.QRCode, error)
	ConnectionState(ctx context.Context, instanceName string) (*evolution.ConnectionState, error)
}

// Flow drives the QR pairing of one instance. A flow moves from
// StateConnecting to exactly one terminal state (StateConnected or
// StateError) per attempt; Retry discards the in-flight attempt and
// re-enters the artifact fetch. Close cancels everything, including a
// scheduled success callback.
type Flow struct {
	gw        Gateway
	instance  string
	cfg       Config
	onSuccess func()
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	qr        *evolution.QRCode
	err       error
	attempt   int
	cancel    context.CancelFunc
	closed    bool
	succeeded bool
}

// NewFlow creates a flow for the given instance. onSuccess may be nil; when
// set it is invoked at most once, after the settle delay, and never after
// Close.
func NewFlow(gw Gateway, instanceName string, cfg Config, onSuccess func()) *Flow {
	return &Flow{
		gw:        gw,
		instance:  instanceName,
		cfg:       cfg.withDefaults(),
		onSuccess: onSuccess,
		state:     StateConnecting,
		logger:    slog.Default().With("component", "pairing", "instance", instanceName),
	}
}

// Instance returns the instance name this flow pairs.
func (f *Flow) Instance() string {
	return f.instance
}

// Start begins the first pairing attempt. The flow runs in the background
// until a terminal state, ctx cancellation, or Close.
func (f *Flow) Start(ctx context.Context) {
	f.begin(ctx)
}

// Retry discards any in-flight attempt and re-enters the artifact fetch.
// A no-op once the flow has connected or been closed.
func (f *Flow) Retry(ctx context.Context) {
	f.begin(ctx)
}

func (f *Flow) begin(ctx context.Context) {
	f.mu.Lock()
	if f.closed || f.state == StateConnected {
		f.mu.Unlock()
		return
	}

	// Cancel the previous attempt so its ticks can never mutate state.
	if f.cancel != nil {
		f.cancel()
	}

	f.attempt++
	attempt := f.attempt
	attemptCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.state = StateConnecting
	f.qr = nil
	f.err = nil
	f.mu.Unlock()

	go f.run(attemptCtx, attempt)
}

// Close cancels the flow. Pending polls and a pending settle-delay callback
// are abandoned; the success callback will not fire after Close returns.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.cancel != nil {
		f.cancel()
	}
}

// State returns the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// QR returns the pairing artifact for the current attempt, nil before the
// artifact fetch resolves.
func (f *Flow) QR() *evolution.QRCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.qr
}

// Err returns the terminal error, nil unless State is StateError.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// run executes one pairing attempt: artifact fetch, then state polling.
func (f *Flow) run(ctx context.Context, attempt int) {
	qr, err := f.gw.Connect(ctx, f.instance)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		f.logger.Error("artifact fetch failed", "error", err)
		f.fail(attempt, errors.Join(ErrArtifactFetch, err))
		return
	}

	if !f.setQR(attempt, qr) {
		return
	}

	// Polling begins only after the artifact was obtained; the ceiling is
	// measured from here.
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(f.cfg.Ceiling)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			f.logger.Warn("pairing ceiling reached", "ceiling", f.cfg.Ceiling)
			f.fail(attempt, ErrTimeout)
			return

		case <-ticker.C:
			state, err := f.gw.ConnectionState(ctx, f.instance)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Poll errors are transient; keep polling until the ceiling.
				f.logger.Warn("state poll failed", "error", err)
				continue
			}

			if state.State != evolution.StateOpen {
				continue
			}

			if !f.connect(attempt) {
				return
			}
			f.settle(ctx, attempt)
			return
		}
	}
}

// settle waits out the settle delay, then invokes the success callback
// unless the flow was closed or superseded in the meantime.
func (f *Flow) settle(ctx context.Context, attempt int) {
	timer := time.NewTimer(f.cfg.SettleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	f.mu.Lock()
	fire := !f.closed && f.attempt == attempt && !f.succeeded && f.onSuccess != nil
	if fire {
		f.succeeded = true
	}
	f.mu.Unlock()

	if fire {
		f.onSuccess()
	}
}

// current reports whether the attempt is still the live one.
func (f *Flow) current(attempt int) bool {
	return !f.closed && f.attempt == attempt
}

func (f *Flow) setQR(attempt int, qr *evolution.QRCode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.current(attempt) {
		return false
	}
	f.qr = qr
	return true
}

func (f *Flow) connect(attempt int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.current(attempt) || f.state != StateConnecting {
		return false
	}
	f.state = StateConnected
	f.logger.Info("instance paired")
	return true
}

func (f *Flow) fail(attempt int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.current(attempt) || f.state != StateConnecting {
		return
	}
	f.state = StateError
	f.err = err
}
