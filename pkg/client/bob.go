package client

import (
	"context"
	"io"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"
	"github.com/zkcoinjoin/wabisabi/internal/params"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// BobClient spends credentials on outputs. It is not linked to any input.
type BobClient struct {
	coord   Coordinator
	state   *round.State
	clients *credentialClients
	log     *zap.Logger
}

// NewBobClient returns a client for the round of state. log may be nil.
func NewBobClient(coord Coordinator, state *round.State, rand io.Reader, log *zap.Logger) (*BobClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	clients, err := newCredentialClients(state, rand)
	if err != nil {
		return nil, err
	}
	return &BobClient{coord: coord, state: state, clients: clients, log: log.With(zap.Stringer("round", state.ID))}, nil
}

// Reissue exchanges the credentials of creds for credentials of the given
// values, which must keep both totals. It also returns fresh zero credentials.
func (b *BobClient) Reissue(ctx context.Context, creds Credentials, amounts, vsizes []uint64) (issued, zero Credentials, err error) {
	if total(creds.Amount) != sum(amounts) || total(creds.Vsize) != sum(vsizes) {
		return issued, zero, errors.New("reissued values must keep the presented totals")
	}
	realAmount, realAmountValidator, err := b.clients.amount.CreateRequest(amounts, creds.Amount)
	if err != nil {
		return issued, zero, err
	}
	realVsize, realVsizeValidator, err := b.clients.vsize.CreateRequest(vsizes, creds.Vsize)
	if err != nil {
		return issued, zero, err
	}
	zeroAmount, zeroVsize, zeroAmountValidator, zeroVsizeValidator, err := b.clients.zeroRequests()
	if err != nil {
		return issued, zero, err
	}

	resp, err := b.coord.ReissueCredentials(ctx, &messages.ReissueCredentialRequest{
		RoundID:                      b.state.ID,
		RealAmountCredentialRequests: realAmount,
		RealVsizeCredentialRequests:  realVsize,
		ZeroAmountCredentialRequests: zeroAmount,
		ZeroVsizeCredentialRequests:  zeroVsize,
	})
	if err != nil {
		return issued, zero, err
	}
	if issued.Amount, err = b.clients.amount.HandleResponse(resp.RealAmountCredentials, realAmountValidator); err != nil {
		return Credentials{}, Credentials{}, err
	}
	if issued.Vsize, err = b.clients.vsize.HandleResponse(resp.RealVsizeCredentials, realVsizeValidator); err != nil {
		return Credentials{}, Credentials{}, err
	}
	if zero.Amount, err = b.clients.amount.HandleResponse(resp.ZeroAmountCredentials, zeroAmountValidator); err != nil {
		return Credentials{}, Credentials{}, err
	}
	if zero.Vsize, err = b.clients.vsize.HandleResponse(resp.ZeroVsizeCredentials, zeroVsizeValidator); err != nil {
		return Credentials{}, Credentials{}, err
	}
	return issued, zero, nil
}

// RegisterOutput spends creds on an output to pkScript, and returns its value.
//
// The amount credentials pay for the output value and its fee. The vsize
// credentials must add up to the output's virtual size.
func (b *BobClient) RegisterOutput(ctx context.Context, creds Credentials, pkScript []byte) (btcutil.Amount, error) {
	_, vsize, ok := round.OutputCost(0, pkScript, b.state.Parameters.FeeRate)
	if !ok {
		return 0, errors.Errorf("unsupported output script %x", pkScript)
	}
	if creds.VsizeTotal() != uint64(vsize) {
		return 0, errors.Errorf("vsize credentials of %d for an output of %d vbytes", creds.VsizeTotal(), vsize)
	}
	value := btcutil.Amount(creds.AmountTotal()) - b.state.Parameters.FeeRate.Fee(vsize)

	amountReq, _, err := b.clients.amount.CreateRequest(nil, creds.Amount)
	if err != nil {
		return 0, err
	}
	vsizeReq, _, err := b.clients.vsize.CreateRequest(nil, creds.Vsize)
	if err != nil {
		return 0, err
	}
	err = b.coord.RegisterOutput(ctx, &messages.OutputRegistrationRequest{
		RoundID:                  b.state.ID,
		Script:                   append([]byte(nil), pkScript...),
		AmountCredentialRequests: amountReq,
		VsizeCredentialRequests:  vsizeReq,
	})
	if err != nil {
		return 0, err
	}
	b.log.Debug("output registered", zap.Int64("value", int64(value)))
	return value, nil
}

// SpendAll registers a single output to pkScript, worth all of the amount
// credentials of creds minus the output's fee. Leftover vsize credentials are
// abandoned.
func (b *BobClient) SpendAll(ctx context.Context, creds Credentials, pkScript []byte) (btcutil.Amount, error) {
	if len(creds.Amount) != params.NumberOfCredentials || len(creds.Vsize) != params.NumberOfCredentials {
		return 0, errors.Errorf("expected %d credentials of each kind", params.NumberOfCredentials)
	}
	_, vsize, ok := round.OutputCost(0, pkScript, b.state.Parameters.FeeRate)
	if !ok {
		return 0, errors.Errorf("unsupported output script %x", pkScript)
	}
	vsizeTotal := creds.VsizeTotal()
	if vsizeTotal < uint64(vsize) {
		return 0, errors.Errorf("vsize credentials of %d for an output of %d vbytes", vsizeTotal, vsize)
	}

	issued, zero, err := b.Reissue(ctx, creds,
		[]uint64{creds.AmountTotal(), 0},
		[]uint64{uint64(vsize), vsizeTotal - uint64(vsize)})
	if err != nil {
		return 0, errors.Wrap(err, "reissue")
	}
	return b.RegisterOutput(ctx, Credentials{
		Amount: append(issued.Amount[:1:1], zero.Amount[0]),
		Vsize:  append(issued.Vsize[:1:1], zero.Vsize[0]),
	}, pkScript)
}

func sum(values []uint64) uint64 {
	var s uint64
	for _, v := range values {
		s += v
	}
	return s
}
