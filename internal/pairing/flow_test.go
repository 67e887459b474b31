// ABOUTME: Tests for the QR pairing flow state machine
// ABOUTME: Covers terminal exclusivity, cancellation on close, ceiling expiry, and retry

package pairing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaxdesign/evobolt/internal/evolution"
)

// fakeGateway scripts the remote side of a pairing flow.
type fakeGateway struct {
	mu         sync.Mutex
	connectErr error
	states     []string // consumed one per poll; last value repeats
	polls      int
	connects   int
}

func (g *fakeGateway) Connect(ctx context.Context, name string) (*evolution.QRCode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connects++
	if g.connectErr != nil {
		return nil, g.connectErr
	}
	return &evolution.QRCode{Code: "pair-code", Base64: "aW1hZ2U="}, nil
}

func (g *fakeGateway) ConnectionState(ctx context.Context, name string) (*evolution.ConnectionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	idx := g.polls - 1
	if idx >= len(g.states) {
		idx = len(g.states) - 1
	}
	if len(g.states) == 0 {
		return &evolution.ConnectionState{State: "close"}, nil
	}
	return &evolution.ConnectionState{State: g.states[idx]}, nil
}

func (g *fakeGateway) pollCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls
}

func (g *fakeGateway) connectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connects
}

// fastConfig keeps timing tests quick.
func fastConfig() Config {
	return Config{
		PollInterval: 10 * time.Millisecond,
		SettleDelay:  20 * time.Millisecond,
		Ceiling:      2 * time.Second,
	}
}

func TestFlow_SuccessAtThirdPoll(t *testing.T) {
	// The remote flips to "open" at the third poll tick; the flow must reach
	// Connected and fire the callback exactly once, after the settle delay.
	gw := &fakeGateway{states: []string{"close", "close", "open"}}

	var successes atomic.Int32
	flow := NewFlow(gw, "acct-1", fastConfig(), func() { successes.Add(1) })
	flow.Start(context.Background())
	defer flow.Close()

	require.Eventually(t, func() bool {
		return flow.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	require.GreaterOrEqual(t, gw.pollCount(), 3)
	require.NotNil(t, flow.QR())
	assert.Equal(t, "pair-code", flow.QR().Code)

	require.Eventually(t, func() bool {
		return successes.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// No second invocation arrives later.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, StateConnected, flow.State())
	assert.NoError(t, flow.Err())
}

func TestFlow_ArtifactFetchFailure(t *testing.T) {
	gw := &fakeGateway{connectErr: errors.New("remote down")}

	flow := NewFlow(gw, "acct-1", fastConfig(), nil)
	flow.Start(context.Background())
	defer flow.Close()

	require.Eventually(t, func() bool {
		return flow.State() == StateError
	}, time.Second, 5*time.Millisecond)

	// No image is shown and no polling ever started.
	assert.Nil(t, flow.QR())
	assert.Equal(t, 0, gw.pollCount())
	assert.ErrorIs(t, flow.Err(), ErrArtifactFetch)
}

func TestFlow_CeilingSurfacesTimeout(t *testing.T) {
	// The remote never reports "open": polling must cease no later than the
	// ceiling and surface an explicit timeout error, with no success
	// callback ever firing.
	gw := &fakeGateway{states: []string{"close"}}

	var successes atomic.Int32
	cfg := fastConfig()
	cfg.Ceiling = 60 * time.Millisecond
	flow := NewFlow(gw, "acct-1", cfg, func() { successes.Add(1) })
	flow.Start(context.Background())
	defer flow.Close()

	require.Eventually(t, func() bool {
		return flow.State() == StateError
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, flow.Err(), ErrTimeout)

	// Polling has stopped: the count stays put.
	polls := gw.pollCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, polls, gw.pollCount())
	assert.Equal(t, int32(0), successes.Load())
}

func TestFlow_CloseCancelsPolling(t *testing.T) {
	gw := &fakeGateway{states: []string{"close"}}

	var successes atomic.Int32
	flow := NewFlow(gw, "acct-1", fastConfig(), func() { successes.Add(1) })
	flow.Start(context.Background())

	require.Eventually(t, func() bool {
		return gw.pollCount() >= 1
	}, time.Second, 5*time.Millisecond)

	flow.Close()

	polls := gw.pollCount()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, gw.pollCount(), polls+1)

	// Closed before any terminal state: no callback may ever fire.
	assert.Equal(t, int32(0), successes.Load())
}

func TestFlow_CloseCancelsSettleCallback(t *testing.T) {
	// The paired state is observed, then the flow is closed during the
	// settle delay. The already-scheduled callback must not fire.
	gw := &fakeGateway{states: []string{"open"}}

	var successes atomic.Int32
	cfg := fastConfig()
	cfg.SettleDelay = 150 * time.Millisecond
	flow := NewFlow(gw, "acct-1", cfg, func() { successes.Add(1) })
	flow.Start(context.Background())

	require.Eventually(t, func() bool {
		return flow.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	flow.Close()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), successes.Load())
}

func TestFlow_TerminalExclusivity(t *testing.T) {
	// A flow that connects just before a tight ceiling must end in exactly
	// one terminal state and stay there.
	gw := &fakeGateway{states: []string{"open"}}

	cfg := fastConfig()
	cfg.Ceiling = 40 * time.Millisecond
	flow := NewFlow(gw, "acct-1", cfg, nil)
	flow.Start(context.Background())
	defer flow.Close()

	require.Eventually(t, func() bool {
		s := flow.State()
		return s == StateConnected || s == StateError
	}, time.Second, time.Millisecond)

	terminal := flow.State()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, terminal, flow.State())

	if terminal == StateConnected {
		assert.NoError(t, flow.Err())
	} else {
		assert.Error(t, flow.Err())
	}
}

func TestFlow_RetryAfterArtifactFailure(t *testing.T) {
	gw := &fakeGateway{connectErr: errors.New("remote down"), states: []string{"open"}}

	var successes atomic.Int32
	flow := NewFlow(gw, "acct-1", fastConfig(), func() { successes.Add(1) })
	flow.Start(context.Background())
	defer flow.Close()

	require.Eventually(t, func() bool {
		return flow.State() == StateError
	}, time.Second, 5*time.Millisecond)

	// The remote recovers; retry re-enters the artifact fetch.
	gw.mu.Lock()
	gw.connectErr = nil
	gw.mu.Unlock()

	flow.Retry(context.Background())

	require.Eventually(t, func() bool {
		return flow.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return successes.Load() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, gw.connectCount())
}

func TestFlow_RetryDiscardsInFlightAttempt(t *testing.T) {
	gw := &fakeGateway{states: []string{"close"}}

	flow := NewFlow(gw, "acct-1", fastConfig(), nil)
	flow.Start(context.Background())
	defer flow.Close()

	require.Eventually(t, func() bool {
		return gw.pollCount() >= 2
	}, time.Second, 5*time.Millisecond)

	flow.Retry(context.Background())

	// The retried attempt fetched a fresh artifact and is polling again;
	// the flow is back in Connecting with no stale error.
	require.Eventually(t, func() bool {
		return gw.connectCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnecting, flow.State())
	assert.NoError(t, flow.Err())
}

func TestFlow_StartAfterCloseIsNoop(t *testing.T) {
	gw := &fakeGateway{states: []string{"open"}}

	flow := NewFlow(gw, "acct-1", fastConfig(), nil)
	flow.Close()
	flow.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, gw.connectCount())
}
