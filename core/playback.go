package orchestration

import (
	"context"
	"sync"
	"time"
)

// playbackGate is a single-slot rendezvous between the turn loop and
// SignalPlaybackComplete. A signal sent while nobody waits is kept for the
// next wait. The slot is replaced after every wait so duplicate signals for
// a finished wait are dropped.
type playbackGate struct {
	mu   sync.Mutex
	slot chan struct{}
}

func newPlaybackGate() *playbackGate {
	return &playbackGate{slot: make(chan struct{}, 1)}
}

func (g *playbackGate) current() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot
}

func (g *playbackGate) signal() {
	select {
	case g.current() <- struct{}{}:
	default:
	}
}

func (g *playbackGate) wait(ctx context.Context, timeout time.Duration) error {
	slot := g.current()
	defer g.renew()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-slot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return errPlaybackTimeout
	}
}

func (g *playbackGate) renew() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slot = make(chan struct{}, 1)
}
