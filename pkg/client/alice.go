package client

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/ownership"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// AliceClient registers one coin in a round, converts it to credentials and
// signs for it.
type AliceClient struct {
	coord   Coordinator
	state   *round.State
	key     *ownership.Key
	coin    coinjoin.Coin
	clients *credentialClients
	log     *zap.Logger

	id          messages.AliceID
	zero        Credentials
	credentials Credentials
	confirmed   bool
}

// RegisterInput registers coin, controlled by key, in the round of state.
func RegisterInput(ctx context.Context, coord Coordinator, state *round.State, key *ownership.Key, coin coinjoin.Coin, rand io.Reader, log *zap.Logger) (*AliceClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	clients, err := newCredentialClients(state, rand)
	if err != nil {
		return nil, err
	}
	proof, err := key.Prove(round.CommitmentData(round.CoordinatorIdentifier, state.ID))
	if err != nil {
		return nil, errors.Wrap(err, "prove ownership")
	}
	zeroAmount, zeroVsize, amountValidator, vsizeValidator, err := clients.zeroRequests()
	if err != nil {
		return nil, err
	}

	resp, err := coord.RegisterInput(ctx, &messages.InputRegistrationRequest{
		RoundID:                      state.ID,
		Input:                        coin.Outpoint,
		OwnershipProof:               proof,
		ZeroAmountCredentialRequests: zeroAmount,
		ZeroVsizeCredentialRequests:  zeroVsize,
	})
	if err != nil {
		return nil, err
	}

	a := &AliceClient{
		coord:   coord,
		state:   state,
		key:     key,
		coin:    coin,
		clients: clients,
		id:      resp.AliceID,
		log:     log.With(zap.Stringer("round", state.ID), zap.Stringer("alice", resp.AliceID)),
	}
	if a.zero.Amount, err = clients.amount.HandleResponse(resp.AmountCredentials, amountValidator); err != nil {
		return nil, err
	}
	if a.zero.Vsize, err = clients.vsize.HandleResponse(resp.VsizeCredentials, vsizeValidator); err != nil {
		return nil, err
	}
	a.log.Debug("input registered")
	return a, nil
}

// ID returns the identifier the coordinator assigned to the input.
func (a *AliceClient) ID() messages.AliceID {
	return a.id
}

// Coin returns the registered coin.
func (a *AliceClient) Coin() coinjoin.Coin {
	return a.coin
}

// Credentials returns the real credentials received on confirmation, and the
// zero credentials last received.
func (a *AliceClient) Credentials() (issued, zero Credentials) {
	return a.credentials, a.zero
}

// ConfirmConnection confirms the registration. During ConnectionConfirmation
// the coin is converted to real credentials, and true is returned.
func (a *AliceClient) ConfirmConnection(ctx context.Context) (bool, error) {
	if a.confirmed {
		return true, nil
	}
	amountCredit := uint64(a.state.AmountCredit(a.coin))
	vsizeCredit := uint64(a.state.VsizeCredit(a.coin))

	zeroAmount, zeroVsize, zeroAmountValidator, zeroVsizeValidator, err := a.clients.zeroRequests()
	if err != nil {
		return false, err
	}
	realAmount, realAmountValidator, err := a.clients.amount.CreateRequest([]uint64{amountCredit}, a.zero.Amount)
	if err != nil {
		return false, err
	}
	realVsize, realVsizeValidator, err := a.clients.vsize.CreateRequest([]uint64{vsizeCredit}, a.zero.Vsize)
	if err != nil {
		return false, err
	}

	resp, err := a.coord.ConfirmConnection(ctx, &messages.ConnectionConfirmationRequest{
		RoundID:                      a.state.ID,
		AliceID:                      a.id,
		ZeroAmountCredentialRequests: zeroAmount,
		RealAmountCredentialRequests: realAmount,
		ZeroVsizeCredentialRequests:  zeroVsize,
		RealVsizeCredentialRequests:  realVsize,
	})
	if err != nil {
		return false, err
	}
	if resp.RealAmountCredentials == nil || resp.RealVsizeCredentials == nil {
		// still in InputRegistration. The presented zero credentials were not spent.
		return false, nil
	}

	if a.credentials.Amount, err = a.clients.amount.HandleResponse(resp.RealAmountCredentials, realAmountValidator); err != nil {
		return false, err
	}
	if a.credentials.Vsize, err = a.clients.vsize.HandleResponse(resp.RealVsizeCredentials, realVsizeValidator); err != nil {
		return false, err
	}
	if a.zero.Amount, err = a.clients.amount.HandleResponse(resp.ZeroAmountCredentials, zeroAmountValidator); err != nil {
		return false, err
	}
	if a.zero.Vsize, err = a.clients.vsize.HandleResponse(resp.ZeroVsizeCredentials, zeroVsizeValidator); err != nil {
		return false, err
	}
	a.confirmed = true
	a.log.Debug("connection confirmed", zap.Uint64("amount", amountCredit), zap.Uint64("vsize", vsizeCredit))
	return true, nil
}

// Unregister removes the input from the round during InputRegistration.
func (a *AliceClient) Unregister(ctx context.Context) error {
	return a.coord.RemoveInput(ctx, &messages.InputsRemovalRequest{RoundID: a.state.ID, AliceID: a.id})
}

// Sign sends the witness of the coin's input in the round's transaction.
func (a *AliceClient) Sign(ctx context.Context, state *round.State) error {
	signing := state.Signing()
	if signing == nil {
		return errors.Errorf("round %s is in %s, not signing", state.ID, state.Phase)
	}
	index := -1
	for i, c := range signing.Inputs() {
		if c.Outpoint == a.coin.Outpoint {
			index = i
			break
		}
	}
	if index < 0 {
		return errors.Errorf("input %v is not in the transaction", a.coin.Outpoint)
	}
	witness, err := a.key.SignInput(signing, index)
	if err != nil {
		return err
	}
	return a.coord.SignTransaction(ctx, &messages.TransactionSignaturesRequest{
		RoundID:           state.ID,
		InputWitnessPairs: []messages.InputWitnessPair{{InputIndex: uint32(index), Witness: witness}},
	})
}
