// Package coordinator runs CoinJoin rounds: it registers inputs and outputs,
// issues the credentials that move value between them, and collects the
// signatures of each round's transaction.
//
// Scheduling is left to the caller, which advances rounds with Round.SetPhase.
package coordinator

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/ownership"
	"github.com/zkcoinjoin/wabisabi/pkg/pool"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// ErrArenaClosed is returned by the request handlers of a closed Arena.
var ErrArenaClosed = errors.New("coordinator: arena closed")

// Arena holds the rounds of a coordinator, and routes requests to them.
type Arena struct {
	cfg      Config
	utxos    UTXOProvider
	verifier ownership.Verifier
	rand     io.Reader
	log      *zap.Logger
	metrics  *metrics
	pool     *pool.Pool

	mu     sync.RWMutex
	rounds map[round.ID]*Round

	// closeMu is held for reading by running requests, and for writing by Close.
	closeMu sync.RWMutex
	closed  bool
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(a *Arena) { a.log = log }
}

// WithRegisterer registers the arena's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Arena) { a.metrics = newMetrics(reg) }
}

// WithVerifier sets the ownership proof verifier. The default is ownership.ScriptVerifier.
func WithVerifier(v ownership.Verifier) Option {
	return func(a *Arena) { a.verifier = v }
}

// WithRand sets the source of randomness. The default is crypto/rand.
func WithRand(r io.Reader) Option {
	return func(a *Arena) { a.rand = r }
}

// NewArena returns an arena creating rounds under cfg, with defaults applied.
func NewArena(cfg Config, utxos UTXOProvider, opts ...Option) (*Arena, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Arena{
		cfg:      cfg,
		utxos:    utxos,
		verifier: ownership.ScriptVerifier{},
		rand:     rand.Reader,
		log:      zap.NewNop(),
		rounds:   make(map[round.ID]*Round),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = newMetrics(nil)
	}
	a.pool = pool.NewPool(cfg.VerificationWorkers)
	return a, nil
}

// Config returns the arena's configuration.
func (a *Arena) Config() Config {
	return a.cfg
}

// Close waits for running requests and stops the arena's verification
// workers. Later requests fail with ErrArenaClosed. Rounds obtained from the
// arena must not be used directly after Close.
func (a *Arena) Close() {
	a.closeMu.Lock()
	defer a.closeMu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	a.pool.TearDown()
}

// enter returns the round a request is addressed to. On success the caller
// must call a.leave once the request is done.
func (a *Arena) enter(id round.ID) (*Round, error) {
	a.closeMu.RLock()
	if a.closed {
		a.closeMu.RUnlock()
		return nil, ErrArenaClosed
	}
	r, err := a.Round(id)
	if err != nil {
		a.closeMu.RUnlock()
		return nil, err
	}
	return r, nil
}

func (a *Arena) leave() {
	a.closeMu.RUnlock()
}

// CreateRound starts a new round in InputRegistration.
func (a *Arena) CreateRound() (*Round, error) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return nil, ErrArenaClosed
	}
	r, err := newRound(a.cfg, a.utxos, a.verifier, a.rand, a.pool, a.log, a.metrics)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.rounds[r.ID()] = r
	a.mu.Unlock()
	a.log.Info("round created", zap.Stringer("round", r.ID()))
	return r, nil
}

// Round returns the round with the given id.
func (a *Arena) Round(id round.ID) (*Round, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.rounds[id]
	if !ok {
		return nil, protocol.Errorf(protocol.RoundNotFound, "%s", id)
	}
	return r, nil
}

// RemoveRound forgets the round with the given id, and drops its metrics.
func (a *Arena) RemoveRound(id round.ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.rounds, id)
	a.metrics.forgetRound(id.String())
}

// GetStatus returns the latest state of every round, ordered by ID.
func (a *Arena) GetStatus(ctx context.Context) ([]*round.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	states := make([]*round.State, 0, len(a.rounds))
	for _, r := range a.rounds {
		states = append(states, r.State())
	}
	a.mu.RUnlock()
	sort.Slice(states, func(i, j int) bool {
		return bytes.Compare(states[i].ID[:], states[j].ID[:]) < 0
	})
	return states, nil
}

// observe records the outcome of a request and returns err.
func (a *Arena) observe(request string, id round.ID, err error) error {
	code := "ok"
	if err != nil {
		if c, ok := protocol.CodeOf(err); ok {
			code = c.String()
		} else {
			code = "internal"
			a.log.Error("request failed", zap.String("request", request), zap.Stringer("round", id), zap.Error(err))
		}
		a.log.Debug("request rejected", zap.String("request", request), zap.Stringer("round", id), zap.String("code", code))
	}
	a.metrics.requestsTotal.WithLabelValues(request, code).Inc()
	return err
}

// RegisterInput routes req to its round.
func (a *Arena) RegisterInput(ctx context.Context, req *messages.InputRegistrationRequest) (*messages.InputRegistrationResponse, error) {
	r, err := a.enter(req.RoundID)
	if err != nil {
		return nil, a.observe("input_registration", req.RoundID, err)
	}
	defer a.leave()
	resp, err := r.RegisterInput(ctx, req)
	return resp, a.observe("input_registration", req.RoundID, err)
}

// ConfirmConnection routes req to its round.
func (a *Arena) ConfirmConnection(ctx context.Context, req *messages.ConnectionConfirmationRequest) (*messages.ConnectionConfirmationResponse, error) {
	r, err := a.enter(req.RoundID)
	if err != nil {
		return nil, a.observe("connection_confirmation", req.RoundID, err)
	}
	defer a.leave()
	resp, err := r.ConfirmConnection(req)
	return resp, a.observe("connection_confirmation", req.RoundID, err)
}

// RemoveInput routes req to its round.
func (a *Arena) RemoveInput(ctx context.Context, req *messages.InputsRemovalRequest) error {
	r, err := a.enter(req.RoundID)
	if err != nil {
		return a.observe("inputs_removal", req.RoundID, err)
	}
	defer a.leave()
	return a.observe("inputs_removal", req.RoundID, r.RemoveInput(req))
}

// RegisterOutput routes req to its round.
func (a *Arena) RegisterOutput(ctx context.Context, req *messages.OutputRegistrationRequest) error {
	r, err := a.enter(req.RoundID)
	if err != nil {
		return a.observe("output_registration", req.RoundID, err)
	}
	defer a.leave()
	return a.observe("output_registration", req.RoundID, r.RegisterOutput(req))
}

// ReissueCredentials routes req to its round.
func (a *Arena) ReissueCredentials(ctx context.Context, req *messages.ReissueCredentialRequest) (*messages.ReissueCredentialResponse, error) {
	r, err := a.enter(req.RoundID)
	if err != nil {
		return nil, a.observe("reissuance", req.RoundID, err)
	}
	defer a.leave()
	resp, err := r.ReissueCredentials(req)
	return resp, a.observe("reissuance", req.RoundID, err)
}

// SignTransaction routes req to its round.
func (a *Arena) SignTransaction(ctx context.Context, req *messages.TransactionSignaturesRequest) error {
	r, err := a.enter(req.RoundID)
	if err != nil {
		return a.observe("transaction_signatures", req.RoundID, err)
	}
	defer a.leave()
	return a.observe("transaction_signatures", req.RoundID, r.SignTransaction(req))
}
