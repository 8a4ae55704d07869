// Package client drives a participant through CoinJoin rounds: it follows the
// rounds' phases, registers inputs and outputs with credentials, and signs.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// ErrRoundCanceled is returned to waiters of a round that disappeared, or
// ended before reaching the awaited phase.
var ErrRoundCanceled = fmt.Errorf("client: round canceled: %w", context.Canceled)

// RoundStatusProvider returns the states of the coordinator's rounds.
type RoundStatusProvider interface {
	GetStatus(ctx context.Context) ([]*round.State, error)
}

type waiter struct {
	id    round.ID
	phase round.Phase
	// buffered, written at most once
	done chan waitResult
}

type waitResult struct {
	state *round.State
	err   error
}

// RoundStateUpdater polls a RoundStatusProvider, and resolves the callers of
// WaitForPhase as rounds progress.
type RoundStateUpdater struct {
	provider RoundStatusProvider
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	states  map[round.ID]*round.State
	polled  bool
	waiters []*waiter
}

// NewRoundStateUpdater returns an updater polling provider every interval.
// log may be nil.
func NewRoundStateUpdater(provider RoundStatusProvider, interval time.Duration, log *zap.Logger) *RoundStateUpdater {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoundStateUpdater{
		provider: provider,
		interval: interval,
		log:      log,
		states:   make(map[round.ID]*round.State),
	}
}

// Run polls until ctx is done, and returns ctx.Err().
func (u *RoundStateUpdater) Run(ctx context.Context) error {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		u.Poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll fetches the round states once and resolves the waiters they satisfy.
func (u *RoundStateUpdater) Poll(ctx context.Context) {
	states, err := u.provider.GetStatus(ctx)
	if err != nil {
		u.log.Warn("cannot fetch round states", zap.Error(err))
		return
	}
	byID := make(map[round.ID]*round.State, len(states))
	for _, s := range states {
		byID[s.ID] = s
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.states = byID
	u.polled = true
	pending := u.waiters[:0]
	for _, w := range u.waiters {
		if !u.resolve(w) {
			pending = append(pending, w)
		}
	}
	for i := len(pending); i < len(u.waiters); i++ {
		u.waiters[i] = nil
	}
	u.waiters = pending
}

// resolve answers w if the known states allow it. It must be called with mu held.
func (u *RoundStateUpdater) resolve(w *waiter) bool {
	if !u.polled {
		return false
	}
	s, ok := u.states[w.id]
	switch {
	case !ok:
		w.done <- waitResult{err: ErrRoundCanceled}
	case s.Phase == round.Ended && w.phase != round.Ended:
		w.done <- waitResult{err: ErrRoundCanceled}
	case s.Phase >= w.phase:
		w.done <- waitResult{state: s}
	default:
		return false
	}
	u.log.Debug("waiter resolved", zap.Stringer("round", w.id), zap.Stringer("phase", w.phase))
	return true
}

// State returns the last polled state of the round with the given id.
func (u *RoundStateUpdater) State(id round.ID) (*round.State, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	s, ok := u.states[id]
	return s, ok
}

// States returns the last polled states.
func (u *RoundStateUpdater) States() []*round.State {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*round.State, 0, len(u.states))
	for _, s := range u.states {
		out = append(out, s)
	}
	return out
}

// WaitForPhase blocks until the round with the given id is in phase or a later
// one, and returns its state.
//
// Waiters of the same round and phase are resolved in the order they called.
// If the round disappears, or ends before reaching phase, ErrRoundCanceled is
// returned. If ctx is done first, ctx.Err() is returned.
func (u *RoundStateUpdater) WaitForPhase(ctx context.Context, id round.ID, phase round.Phase) (*round.State, error) {
	w := &waiter{id: id, phase: phase, done: make(chan waitResult, 1)}
	u.mu.Lock()
	if !u.resolve(w) {
		u.waiters = append(u.waiters, w)
	}
	u.mu.Unlock()

	select {
	case res := <-w.done:
		return res.state, res.err
	case <-ctx.Done():
		u.remove(w)
		// the waiter may have been resolved concurrently
		select {
		case res := <-w.done:
			return res.state, res.err
		default:
			return nil, ctx.Err()
		}
	}
}

func (u *RoundStateUpdater) remove(w *waiter) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, other := range u.waiters {
		if other == w {
			u.waiters = append(u.waiters[:i], u.waiters[i+1:]...)
			return
		}
	}
}
