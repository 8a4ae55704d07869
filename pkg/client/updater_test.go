package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap/zaptest"
)

type fakeProvider struct {
	mu     sync.Mutex
	states map[round.ID]round.Phase
	err    error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{states: make(map[round.ID]round.Phase)}
}

func (p *fakeProvider) set(id round.ID, phase round.Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[id] = phase
}

func (p *fakeProvider) remove(id round.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, id)
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) GetStatus(ctx context.Context) ([]*round.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([]*round.State, 0, len(p.states))
	for id, phase := range p.states {
		out = append(out, &round.State{ID: id, Phase: phase})
	}
	return out, nil
}

type result struct {
	state *round.State
	err   error
}

func wait(ctx context.Context, u *RoundStateUpdater, id round.ID, phase round.Phase) <-chan result {
	ch := make(chan result, 1)
	go func() {
		s, err := u.WaitForPhase(ctx, id, phase)
		ch <- result{s, err}
	}()
	return ch
}

func waitersRegistered(t *testing.T, u *RoundStateUpdater, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		u.mu.Lock()
		defer u.mu.Unlock()
		return len(u.waiters) == n
	}, time.Second, time.Millisecond)
}

func receive(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("waiter not resolved")
		return result{}
	}
}

func TestWaitForPhase(t *testing.T) {
	p := newFakeProvider()
	id := round.ID{1}
	p.set(id, round.InputRegistration)
	u := NewRoundStateUpdater(p, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	later := wait(ctx, u, id, round.OutputRegistration)
	waitersRegistered(t, u, 1)
	sooner := wait(ctx, u, id, round.ConnectionConfirmation)
	waitersRegistered(t, u, 2)

	u.Poll(ctx)
	waitersRegistered(t, u, 2)

	p.set(id, round.ConnectionConfirmation)
	u.Poll(ctx)
	r := receive(t, sooner)
	require.NoError(t, r.err)
	assert.Equal(t, round.ConnectionConfirmation, r.state.Phase)
	waitersRegistered(t, u, 1)

	// skipping a phase still resolves
	p.set(id, round.TransactionSigning)
	u.Poll(ctx)
	r = receive(t, later)
	require.NoError(t, r.err)
	assert.Equal(t, round.TransactionSigning, r.state.Phase)

	// already reached
	s, err := u.WaitForPhase(ctx, id, round.InputRegistration)
	require.NoError(t, err)
	assert.Equal(t, round.TransactionSigning, s.Phase)
	cached, ok := u.State(id)
	require.True(t, ok)
	assert.Equal(t, round.TransactionSigning, cached.Phase)
}

func TestWaitForPhaseMany(t *testing.T) {
	p := newFakeProvider()
	id := round.ID{1}
	p.set(id, round.InputRegistration)
	u := NewRoundStateUpdater(p, time.Hour, nil)
	ctx := context.Background()

	chans := make([]<-chan result, 3)
	for i := range chans {
		chans[i] = wait(ctx, u, id, round.OutputRegistration)
		waitersRegistered(t, u, i+1)
	}
	p.set(id, round.OutputRegistration)
	u.Poll(ctx)
	waitersRegistered(t, u, 0)
	for _, ch := range chans {
		r := receive(t, ch)
		require.NoError(t, r.err)
	}
}

func TestRoundCanceled(t *testing.T) {
	p := newFakeProvider()
	gone, ended := round.ID{1}, round.ID{2}
	p.set(gone, round.InputRegistration)
	p.set(ended, round.OutputRegistration)
	u := NewRoundStateUpdater(p, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	goneWaiter := wait(ctx, u, gone, round.ConnectionConfirmation)
	waitersRegistered(t, u, 1)
	signingWaiter := wait(ctx, u, ended, round.TransactionSigning)
	waitersRegistered(t, u, 2)
	endedWaiter := wait(ctx, u, ended, round.Ended)
	waitersRegistered(t, u, 3)
	u.Poll(ctx)

	p.remove(gone)
	p.set(ended, round.Ended)
	u.Poll(ctx)

	r := receive(t, goneWaiter)
	assert.ErrorIs(t, r.err, ErrRoundCanceled)
	assert.ErrorIs(t, r.err, context.Canceled)

	r = receive(t, signingWaiter)
	assert.ErrorIs(t, r.err, ErrRoundCanceled)

	r = receive(t, endedWaiter)
	require.NoError(t, r.err)
	assert.Equal(t, round.Ended, r.state.Phase)

	_, err := u.WaitForPhase(ctx, round.ID{3}, round.InputRegistration)
	assert.ErrorIs(t, err, ErrRoundCanceled, "unknown rounds are canceled once polled")
}

func TestCallerCancellation(t *testing.T) {
	p := newFakeProvider()
	id := round.ID{1}
	p.set(id, round.InputRegistration)
	u := NewRoundStateUpdater(p, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	canceled := wait(ctx, u, id, round.ConnectionConfirmation)
	waitersRegistered(t, u, 1)
	other := wait(context.Background(), u, id, round.ConnectionConfirmation)
	waitersRegistered(t, u, 2)

	cancel()
	r := receive(t, canceled)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.NotErrorIs(t, r.err, ErrRoundCanceled)
	waitersRegistered(t, u, 1)

	p.set(id, round.ConnectionConfirmation)
	u.Poll(context.Background())
	r = receive(t, other)
	assert.NoError(t, r.err)
}

func TestProviderError(t *testing.T) {
	p := newFakeProvider()
	id := round.ID{1}
	p.set(id, round.InputRegistration)
	u := NewRoundStateUpdater(p, time.Hour, zaptest.NewLogger(t))
	u.Poll(context.Background())

	p.fail(errors.New("connection refused"))
	u.Poll(context.Background())
	s, ok := u.State(id)
	require.True(t, ok, "states survive a failed poll")
	assert.Equal(t, round.InputRegistration, s.Phase)
	assert.Len(t, u.States(), 1)
}

func TestRun(t *testing.T) {
	p := newFakeProvider()
	id := round.ID{1}
	p.set(id, round.InputRegistration)
	u := NewRoundStateUpdater(p, time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	waiter := wait(context.Background(), u, id, round.OutputRegistration)
	p.set(id, round.OutputRegistration)
	r := receive(t, waiter)
	require.NoError(t, r.err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
