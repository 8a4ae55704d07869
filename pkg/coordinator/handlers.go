package coordinator

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/zkcoinjoin/wabisabi/internal/types"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"github.com/zkcoinjoin/wabisabi/pkg/credential"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// Requests are verified against a snapshot without holding mu, and applied
// under mu after checking that the snapshot's phase still holds.

// RegisterInput registers the coin of req as a new Alice, and issues her zero
// credentials.
func (r *Round) RegisterInput(ctx context.Context, req *messages.InputRegistrationRequest) (*messages.InputRegistrationResponse, error) {
	s := r.state.Load()
	if err := round.CheckPhase(s, round.InputRegistration); err != nil {
		return nil, err
	}

	txOut, err := r.utxos.GetTxOut(ctx, req.Input)
	if errors.Is(err, ErrUTXONotFound) {
		return nil, protocol.Errorf(protocol.InputSpent, "%v", req.Input)
	}
	if err != nil {
		return nil, errors.Wrap(err, "look up input")
	}
	coin := coinjoin.NewCoin(req.Input, btcutil.Amount(txOut.Value), txOut.PkScript)

	commitment := round.CommitmentData(round.CoordinatorIdentifier, s.ID)
	if err := r.verifier.Verify(coin.TxOut.PkScript, commitment, req.OwnershipProof); err != nil {
		return nil, &protocol.Error{Code: protocol.WrongOwnershipProof, Err: err}
	}

	zeroAmount, err := prepareZero(r.amountIssuer, req.ZeroAmountCredentialRequests)
	if err != nil {
		return nil, err
	}
	zeroVsize, err := prepareZero(r.vsizeIssuer, req.ZeroVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s = r.state.Load()
	if err := round.CheckPhase(s, round.InputRegistration); err != nil {
		return nil, err
	}
	for _, a := range r.alices {
		if a.Coin.Outpoint == req.Input {
			return nil, protocol.Errorf(protocol.AliceAlreadyRegistered, "%v", req.Input)
		}
	}
	cj, err := s.Construction().AddInput(coin)
	if err != nil {
		return nil, err
	}
	if credit := s.AmountCredit(coin); credit <= 0 {
		return nil, protocol.Errorf(protocol.UneconomicalInput, "input of %v is credited %v", coin.Amount(), credit)
	}
	if s.VsizeCredit(coin) < 0 {
		return nil, protocol.Errorf(protocol.SizeLimitExceeded, "input larger than the vsize allocation")
	}

	id, err := types.NewRID(r.rand)
	if err != nil {
		return nil, errors.Wrap(err, "sample alice id")
	}
	resps, err := commitAll(zeroAmount, zeroVsize)
	if err != nil {
		return nil, err
	}
	r.alices[id] = &Alice{ID: id, Coin: coin, OwnershipProof: req.OwnershipProof}
	r.publish(s.With(s.Phase, cj))
	r.log.Debug("input registered", zap.Stringer("alice", id), zap.Stringer("outpoint", req.Input))

	return &messages.InputRegistrationResponse{
		AliceID:           id,
		AmountCredentials: resps[0],
		VsizeCredentials:  resps[1],
	}, nil
}

// ConfirmConnection keeps an Alice registered. During ConnectionConfirmation it
// also converts her input into real amount and vsize credentials, once.
func (r *Round) ConfirmConnection(req *messages.ConnectionConfirmationRequest) (*messages.ConnectionConfirmationResponse, error) {
	s := r.state.Load()
	if err := round.CheckPhase(s, round.InputRegistration, round.ConnectionConfirmation); err != nil {
		return nil, err
	}
	alice, err := r.Alice(req.AliceID)
	if err != nil {
		return nil, err
	}

	zeroAmount, err := prepareZero(r.amountIssuer, req.ZeroAmountCredentialRequests)
	if err != nil {
		return nil, err
	}
	zeroVsize, err := prepareZero(r.vsizeIssuer, req.ZeroVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}
	prepared := []*credential.PreparedResponse{zeroAmount, zeroVsize}

	if s.Phase == round.ConnectionConfirmation {
		if alice.ConfirmedConnection {
			return nil, protocol.Errorf(protocol.AliceAlreadyConfirmedConnection, "%s", alice.ID)
		}
		if req.RealAmountCredentialRequests == nil || req.RealVsizeCredentialRequests == nil {
			return nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials, "missing credential request")
		}
		if expected := int64(alice.EffectiveValue(s.Parameters.FeeRate)); req.RealAmountCredentialRequests.Delta != expected {
			return nil, protocol.Errorf(protocol.IncorrectRequestedAmountCredentials,
				"requested %d, expected %d", req.RealAmountCredentialRequests.Delta, expected)
		}
		if expected := alice.VsizeCredit(s.MaxVsizeAllocationPerAlice); req.RealVsizeCredentialRequests.Delta != expected {
			return nil, protocol.Errorf(protocol.IncorrectRequestedVsizeCredentials,
				"requested %d, expected %d", req.RealVsizeCredentialRequests.Delta, expected)
		}
		realAmount, err := prepareReal(r.amountIssuer, req.RealAmountCredentialRequests)
		if err != nil {
			return nil, err
		}
		realVsize, err := prepareReal(r.vsizeIssuer, req.RealVsizeCredentialRequests)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, realAmount, realVsize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.state.Load()
	if current.Phase != s.Phase {
		return nil, protocol.Errorf(protocol.WrongPhase, "round %s moved to %s", s.ID, current.Phase)
	}
	a, ok := r.alices[req.AliceID]
	if !ok {
		return nil, protocol.Errorf(protocol.AliceNotFound, "%s", req.AliceID)
	}
	if s.Phase == round.ConnectionConfirmation && a.ConfirmedConnection {
		return nil, protocol.Errorf(protocol.AliceAlreadyConfirmedConnection, "%s", a.ID)
	}

	resps, err := commitAll(prepared...)
	if err != nil {
		return nil, err
	}
	resp := &messages.ConnectionConfirmationResponse{
		ZeroAmountCredentials: resps[0],
		ZeroVsizeCredentials:  resps[1],
	}
	if s.Phase == round.ConnectionConfirmation {
		a.ConfirmedConnection = true
		resp.RealAmountCredentials = resps[2]
		resp.RealVsizeCredentials = resps[3]
		r.log.Debug("connection confirmed", zap.Stringer("alice", a.ID))
	}
	return resp, nil
}

// RemoveInput unregisters an Alice during InputRegistration.
func (r *Round) RemoveInput(req *messages.InputsRemovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state.Load()
	if err := round.CheckPhase(s, round.InputRegistration); err != nil {
		return err
	}
	a, ok := r.alices[req.AliceID]
	if !ok {
		return protocol.Errorf(protocol.AliceNotFound, "%s", req.AliceID)
	}
	cj, err := s.Construction().RemoveInput(a.Coin.Outpoint)
	if err != nil {
		return errors.Wrapf(err, "remove alice %s", a.ID)
	}
	delete(r.alices, req.AliceID)
	r.publish(s.With(s.Phase, cj))
	r.log.Debug("input removed", zap.Stringer("alice", a.ID))
	return nil
}

// RegisterOutput adds an output paying Script, worth the amount credentials
// spent by req minus the output's fee. The vsize credentials spent must equal
// the output's virtual size.
func (r *Round) RegisterOutput(req *messages.OutputRegistrationRequest) error {
	s := r.state.Load()
	if err := round.CheckPhase(s, round.OutputRegistration); err != nil {
		return err
	}
	if req.AmountCredentialRequests == nil || req.VsizeCredentialRequests == nil {
		return protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials, "missing credential request")
	}

	spent := btcutil.Amount(-req.AmountCredentialRequests.Delta)
	scriptType, ok := coinjoin.ClassifyScript(req.Script)
	if !ok {
		if txscript.GetScriptClass(req.Script) == txscript.NonStandardTy {
			return protocol.Errorf(protocol.NonStandardOutput, "script %x", req.Script)
		}
		return protocol.Errorf(protocol.ScriptNotAllowed, "output script %x", req.Script)
	}
	outputVsize := scriptType.OutputVirtualSize()
	if req.VsizeCredentialRequests.Delta != -outputVsize {
		return protocol.Errorf(protocol.IncorrectRequestedVsizeCredentials,
			"spent %d vbytes, output needs %d", -req.VsizeCredentialRequests.Delta, outputVsize)
	}
	value := spent - s.Parameters.FeeRate.Fee(outputVsize)
	if spent <= 0 || value <= 0 {
		return protocol.Errorf(protocol.IncorrectRequestedAmountCredentials, "spent %v on an output", spent)
	}

	amount, err := prepareReal(r.amountIssuer, req.AmountCredentialRequests)
	if err != nil {
		return err
	}
	vsize, err := prepareReal(r.vsizeIssuer, req.VsizeCredentialRequests)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s = r.state.Load()
	if err := round.CheckPhase(s, round.OutputRegistration); err != nil {
		return err
	}
	cj, err := s.Construction().AddOutput(*wire.NewTxOut(int64(value), req.Script))
	if err != nil {
		return err
	}
	if _, err := commitAll(amount, vsize); err != nil {
		return err
	}
	r.publish(s.With(s.Phase, cj))
	r.log.Debug("output registered", zap.Int64("value", int64(value)))
	return nil
}

// ReissueCredentials exchanges credentials for others of equal total value.
func (r *Round) ReissueCredentials(req *messages.ReissueCredentialRequest) (*messages.ReissueCredentialResponse, error) {
	s := r.state.Load()
	if err := round.CheckPhase(s, round.ConnectionConfirmation, round.OutputRegistration); err != nil {
		return nil, err
	}
	if req.RealAmountCredentialRequests == nil || req.RealVsizeCredentialRequests == nil {
		return nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials, "missing credential request")
	}
	if req.RealAmountCredentialRequests.Delta != 0 || req.RealVsizeCredentialRequests.Delta != 0 {
		return nil, protocol.Errorf(protocol.DeltaNotZero, "amount delta %d, vsize delta %d",
			req.RealAmountCredentialRequests.Delta, req.RealVsizeCredentialRequests.Delta)
	}

	realAmount, err := prepareReal(r.amountIssuer, req.RealAmountCredentialRequests)
	if err != nil {
		return nil, err
	}
	realVsize, err := prepareReal(r.vsizeIssuer, req.RealVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}
	zeroAmount, err := prepareZero(r.amountIssuer, req.ZeroAmountCredentialRequests)
	if err != nil {
		return nil, err
	}
	zeroVsize, err := prepareZero(r.vsizeIssuer, req.ZeroVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := round.CheckPhase(r.state.Load(), round.ConnectionConfirmation, round.OutputRegistration); err != nil {
		return nil, err
	}
	resps, err := commitAll(realAmount, realVsize, zeroAmount, zeroVsize)
	if err != nil {
		return nil, err
	}
	return &messages.ReissueCredentialResponse{
		RealAmountCredentials: resps[0],
		RealVsizeCredentials:  resps[1],
		ZeroAmountCredentials: resps[2],
		ZeroVsizeCredentials:  resps[3],
	}, nil
}

// SignTransaction adds the witnesses of req. Once every input is signed, the
// round ends with its transaction.
func (r *Round) SignTransaction(req *messages.TransactionSignaturesRequest) error {
	witnesses := make(map[int]wire.TxWitness, len(req.InputWitnessPairs))
	for _, pair := range req.InputWitnessPairs {
		i := int(pair.InputIndex)
		if _, ok := witnesses[i]; ok {
			return protocol.Errorf(protocol.WitnessAlreadyProvided, "input %d signed twice", i)
		}
		witnesses[i] = pair.Witness
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state.Load()
	if err := round.CheckPhase(s, round.TransactionSigning); err != nil {
		return err
	}
	signing, err := s.Signing().AddWitnesses(witnesses)
	if err != nil {
		return err
	}
	next := s.With(s.Phase, signing)
	if signing.IsFullySigned() {
		next = next.WithEnd(round.TransactionSigned)
	}
	r.publish(next)
	return nil
}
