package client

import (
	"context"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/credential"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
)

// Coordinator handles the requests of a round's participants.
type Coordinator interface {
	RoundStatusProvider
	RegisterInput(ctx context.Context, req *messages.InputRegistrationRequest) (*messages.InputRegistrationResponse, error)
	ConfirmConnection(ctx context.Context, req *messages.ConnectionConfirmationRequest) (*messages.ConnectionConfirmationResponse, error)
	RemoveInput(ctx context.Context, req *messages.InputsRemovalRequest) error
	RegisterOutput(ctx context.Context, req *messages.OutputRegistrationRequest) error
	ReissueCredentials(ctx context.Context, req *messages.ReissueCredentialRequest) (*messages.ReissueCredentialResponse, error)
	SignTransaction(ctx context.Context, req *messages.TransactionSignaturesRequest) error
}

// credentialClients are the credential clients of a round's two issuers.
type credentialClients struct {
	amount *credential.Client
	vsize  *credential.Client
}

func newCredentialClients(state *round.State, rand io.Reader) (*credentialClients, error) {
	amount, err := credential.NewClient(state.AmountIssuer, state.MaxAmountCredentialValue, round.AmountIssuerContext(state.ID), rand)
	if err != nil {
		return nil, err
	}
	vsize, err := credential.NewClient(state.VsizeIssuer, state.MaxVsizeCredentialValue, round.VsizeIssuerContext(state.ID), rand)
	if err != nil {
		return nil, err
	}
	return &credentialClients{amount: amount, vsize: vsize}, nil
}

// zeroRequests returns zero requests for both issuers.
func (c *credentialClients) zeroRequests() (amount, vsize *credential.ZeroCredentialsRequest, amountValidator, vsizeValidator *credential.Validator, err error) {
	amount, amountValidator, err = c.amount.CreateRequestForZeroAmount()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	vsize, vsizeValidator, err = c.vsize.CreateRequestForZeroAmount()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return amount, vsize, amountValidator, vsizeValidator, nil
}

// Credentials are the amount and vsize credentials held by a participant.
type Credentials struct {
	Amount []*credential.Credential
	Vsize  []*credential.Credential
}

// AmountTotal returns the sum of the amount credentials.
func (c *Credentials) AmountTotal() uint64 {
	return total(c.Amount)
}

// VsizeTotal returns the sum of the vsize credentials.
func (c *Credentials) VsizeTotal() uint64 {
	return total(c.Vsize)
}

func total(creds []*credential.Credential) uint64 {
	var sum uint64
	for _, c := range creds {
		sum += c.Value
	}
	return sum
}
