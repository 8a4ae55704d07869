package coordinator

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"github.com/zkcoinjoin/wabisabi/pkg/credential"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/ownership"
	"github.com/zkcoinjoin/wabisabi/pkg/pool"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// Round owns the state of a single round. Requests are applied one at a time,
// and every change publishes a new round.State snapshot.
type Round struct {
	cfg      Config
	utxos    UTXOProvider
	verifier ownership.Verifier
	rand     io.Reader
	log      *zap.Logger
	metrics  *metrics

	amountIssuer *credential.Issuer
	vsizeIssuer  *credential.Issuer

	// mu serializes updates. Readers use the snapshot in state.
	mu     sync.Mutex
	state  atomic.Pointer[round.State]
	alices map[messages.AliceID]*Alice
}

func newRound(cfg Config, utxos UTXOProvider, verifier ownership.Verifier, rand io.Reader, pl *pool.Pool, log *zap.Logger, m *metrics) (*Round, error) {
	params, err := cfg.Parameters()
	if err != nil {
		return nil, err
	}
	rand = pool.NewLockedReader(rand)
	amountKey := credential.NewSecretKey(rand)
	vsizeKey := credential.NewSecretKey(rand)
	id := round.NewID(params, amountKey.Parameters(), vsizeKey.Parameters())

	amountIssuer, err := credential.NewIssuer(amountKey, cfg.MaxAmountCredentialValue, round.AmountIssuerContext(id), rand, pl)
	if err != nil {
		return nil, errors.Wrap(err, "create amount issuer")
	}
	vsizeIssuer, err := credential.NewIssuer(vsizeKey, cfg.MaxVsizeCredentialValue, round.VsizeIssuerContext(id), rand, pl)
	if err != nil {
		return nil, errors.Wrap(err, "create vsize issuer")
	}

	r := &Round{
		cfg:          cfg,
		utxos:        utxos,
		verifier:     verifier,
		rand:         rand,
		log:          log.With(zap.Stringer("round", id)),
		metrics:      m,
		amountIssuer: amountIssuer,
		vsizeIssuer:  vsizeIssuer,
		alices:       make(map[messages.AliceID]*Alice),
	}
	r.state.Store(&round.State{
		ID:                         id,
		Phase:                      round.InputRegistration,
		Parameters:                 params,
		CoinjoinState:              coinjoin.NewConstructionState(params),
		AmountIssuer:               amountIssuer.Parameters(),
		VsizeIssuer:                vsizeIssuer.Parameters(),
		MaxAmountCredentialValue:   cfg.MaxAmountCredentialValue,
		MaxVsizeCredentialValue:    cfg.MaxVsizeCredentialValue,
		MaxVsizeAllocationPerAlice: cfg.MaxVsizeAllocationPerAlice,
		EndState:                   round.NotFinished,
	})
	r.metrics.roundPhase.WithLabelValues(id.String()).Set(float64(round.InputRegistration))
	return r, nil
}

// ID returns the round's identifier.
func (r *Round) ID() round.ID {
	return r.state.Load().ID
}

// State returns the latest snapshot of the round.
func (r *Round) State() *round.State {
	return r.state.Load()
}

// Alice returns a copy of the registered Alice with the given id.
func (r *Round) Alice(id messages.AliceID) (*Alice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alices[id]
	if !ok {
		return nil, protocol.Errorf(protocol.AliceNotFound, "%s", id)
	}
	return a.clone(), nil
}

// AliceCount returns the number of registered inputs.
func (r *Round) AliceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alices)
}

// Transaction returns the signed transaction of a round that ended with one.
func (r *Round) Transaction() (*wire.MsgTx, error) {
	s := r.state.Load()
	if s.EndState != round.TransactionSigned {
		return nil, errors.Errorf("round %s has no signed transaction", s.ID)
	}
	return s.Signing().CreateTransaction()
}

// publish must be called with mu held.
func (r *Round) publish(s *round.State) {
	prev := r.state.Load()
	r.state.Store(s)
	id := s.ID.String()
	r.metrics.registeredInputs.WithLabelValues(id).Set(float64(len(s.CoinjoinState.Inputs())))
	if s.Phase != prev.Phase {
		r.metrics.roundPhase.WithLabelValues(id).Set(float64(s.Phase))
		r.log.Info("phase changed", zap.Stringer("phase", s.Phase))
	}
	if s.Phase == round.Ended && prev.Phase != round.Ended {
		r.metrics.roundsEndedTotal.WithLabelValues(s.EndState.String()).Inc()
		r.log.Info("round ended", zap.Stringer("end_state", s.EndState))
	}
}

// SetPhase moves the round to phase, which must be the phase following the
// current one, or Ended.
//
// Leaving InputRegistration or ConnectionConfirmation with fewer than
// MinInputCount inputs ends the round instead. Leaving ConnectionConfirmation
// removes the inputs whose connection was not confirmed. Entering
// TransactionSigning ends the round if the registered outputs leave too little
// for the mining fee. Ending a round during TransactionSigning marks it as timed out.
func (r *Round) SetPhase(phase round.Phase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.state.Load()
	if s.Phase == round.Ended {
		return protocol.Errorf(protocol.WrongPhase, "round %s already ended", s.ID)
	}
	if phase != s.Phase.Next() && phase != round.Ended {
		return protocol.Errorf(protocol.WrongPhase, "cannot move round %s from %s to %s", s.ID, s.Phase, phase)
	}

	switch phase {
	case round.ConnectionConfirmation:
		if len(r.alices) < r.cfg.MinInputCount {
			r.publish(s.WithEnd(round.AbortedNotEnoughInputs))
			return nil
		}
		r.publish(s.With(phase, s.CoinjoinState))

	case round.OutputRegistration:
		cj := s.Construction()
		var unconfirmed []messages.AliceID
		for id, a := range r.alices {
			if a.ConfirmedConnection {
				continue
			}
			next, err := cj.RemoveInput(a.Coin.Outpoint)
			if err != nil {
				return errors.Wrapf(err, "remove unconfirmed alice %s", id)
			}
			cj = next
			unconfirmed = append(unconfirmed, id)
		}
		for _, id := range unconfirmed {
			delete(r.alices, id)
			r.log.Info("removed unconfirmed alice", zap.Stringer("alice", id))
		}
		if len(r.alices) < r.cfg.MinInputCount {
			r.publish(s.With(s.Phase, cj).WithEnd(round.AbortedNotEnoughInputs))
			return nil
		}
		r.publish(s.With(phase, cj))

	case round.TransactionSigning:
		signing, err := s.Construction().Finalize()
		if err != nil {
			r.log.Warn("cannot finalize transaction", zap.Error(err))
			r.publish(s.WithEnd(round.AbortedInsufficientFees))
			return nil
		}
		r.publish(s.With(phase, signing))

	case round.Ended:
		reason := round.AbortedNotEnoughInputs
		if s.Phase == round.TransactionSigning {
			reason = round.AbortedSigningTimeout
		}
		r.publish(s.WithEnd(reason))
	}
	return nil
}

func prepareZero(issuer *credential.Issuer, req *credential.ZeroCredentialsRequest) (*credential.PreparedResponse, error) {
	if req == nil {
		return nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials, "missing zero credential request")
	}
	return issuer.Prepare(req)
}

func prepareReal(issuer *credential.Issuer, req *credential.RealCredentialsRequest) (*credential.PreparedResponse, error) {
	if req == nil {
		return nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials, "missing credential request")
	}
	return issuer.Prepare(req)
}

// commitAll commits every prepared response, or none. It must be called with mu held.
func commitAll(prepared ...*credential.PreparedResponse) ([]*credential.CredentialsResponse, error) {
	for _, p := range prepared {
		if err := p.Check(); err != nil {
			return nil, err
		}
	}
	out := make([]*credential.CredentialsResponse, len(prepared))
	for i, p := range prepared {
		resp, err := p.Commit()
		if err != nil {
			return nil, errors.Wrap(err, "commit checked response")
		}
		out[i] = resp
	}
	return out, nil
}
