package credential

import (
	"errors"
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/internal/params"
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/math/sample"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
	"github.com/zkcoinjoin/wabisabi/pkg/transcript"
	"github.com/zkcoinjoin/wabisabi/pkg/zk"
)

// Client builds credential requests for a single issuer, and turns the issuer's
// responses into credentials.
type Client struct {
	params     *IssuerParameters
	maxAmount  uint64
	rangeWidth int
	context    []byte
	rand       io.Reader
}

// NewClient returns a client for the issuer with the given public parameters,
// maximum value and context.
func NewClient(issuer *IssuerParameters, maxAmount uint64, context []byte, rand io.Reader) (*Client, error) {
	if err := issuer.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		params:     issuer,
		maxAmount:  maxAmount,
		rangeWidth: RangeWidth(maxAmount),
		context:    append([]byte(nil), context...),
		rand:       rand,
	}, nil
}

// Validator holds the client state needed to check the response to a request.
type Validator struct {
	transcript *transcript.Transcript
	requested  []*Attribute
}

// CreateRequestForZeroAmount returns a request for credentials of value 0.
func (c *Client) CreateRequestForZeroAmount() (*ZeroCredentialsRequest, *Validator, error) {
	k := params.NumberOfCredentials
	attributes := make([]*Attribute, k)
	requested := make([]IssuanceRequest, k)
	knowledge := make([]zk.Knowledge, k)
	for j := range attributes {
		attributes[j] = NewAttribute(0, c.rand)
		requested[j] = IssuanceRequest{Ma: attributes[j].Ma, BitCommitments: []*curve.Point{}}
		knowledge[j] = ZeroProofKnowledge(attributes[j].Ma, attributes[j].Randomness)
	}

	t := newTranscript(c.context, k, true)
	proofs, err := zk.Prove(t, knowledge, c.rand)
	if err != nil {
		return nil, nil, err
	}
	return &ZeroCredentialsRequest{Requested: requested, Proofs: proofs},
		&Validator{transcript: t, requested: attributes}, nil
}

// CreateRequest returns a request presenting toPresent and asking for
// credentials of the given amounts.
//
// Exactly NumberOfCredentials credentials must be presented. Fewer amounts may
// be requested, the remaining credentials then have value 0.
func (c *Client) CreateRequest(amounts []uint64, toPresent []*Credential) (*RealCredentialsRequest, *Validator, error) {
	k := params.NumberOfCredentials
	if len(toPresent) != k {
		return nil, nil, protocol.Errorf(protocol.InvalidNumberOfPresentedCredentials,
			"got %d, expected %d", len(toPresent), k)
	}
	if len(amounts) > k {
		return nil, nil, protocol.Errorf(protocol.InvalidNumberOfRequestedCredentials,
			"got %d, expected at most %d", len(amounts), k)
	}
	padded := make([]uint64, k)
	copy(padded, amounts)

	var presentedTotal, requestedTotal uint64
	for _, a := range padded {
		if a > c.maxAmount {
			return nil, nil, fmt.Errorf("credential: amount %d exceeds maximum %d", a, c.maxAmount)
		}
		requestedTotal += a
	}
	for _, cred := range toPresent {
		if cred == nil || cred.Mac.validate() != nil {
			return nil, nil, errors.New("credential: cannot present an invalid credential")
		}
		presentedTotal += cred.Value
	}
	delta := int64(requestedTotal) - int64(presentedTotal)

	knowledge := make([]zk.Knowledge, 0, 2*k+1)
	presentations := make([]Presentation, k)
	presentedCa := make([]*curve.Point, k)
	zSum := curve.NewScalar()
	rDelta := curve.NewScalar()
	for j, cred := range toPresent {
		z := sample.ScalarNonZero(c.rand)
		p := cred.Present(z)
		presentations[j] = *p
		presentedCa[j] = p.Ca
		knowledge = append(knowledge, ShowCredentialKnowledge(p, z, cred, c.params))
		zSum.Add(zSum, z)
		rDelta.Add(rDelta, cred.Randomness)
	}

	attributes := make([]*Attribute, k)
	requested := make([]IssuanceRequest, k)
	requestedMa := make([]*curve.Point, k)
	for j, amount := range padded {
		r := sample.ScalarNonZero(c.rand)
		bitRandomness := make([]*curve.Scalar, c.rangeWidth)
		for b := range bitRandomness {
			bitRandomness[b] = sample.ScalarNonZero(c.rand)
		}
		rangeKnowledge, bitCommitments := RangeProofKnowledge(amount, r, bitRandomness)
		knowledge = append(knowledge, rangeKnowledge)

		attributes[j] = &Attribute{Value: amount, Randomness: r, Ma: commit(amount, r)}
		requested[j] = IssuanceRequest{Ma: attributes[j].Ma, BitCommitments: bitCommitments}
		requestedMa[j] = attributes[j].Ma
		rDelta.Sub(rDelta, r)
	}

	balance := BalanceCommitment(presentedCa, requestedMa, delta)
	knowledge = append(knowledge, BalanceProofKnowledge(balance, zSum, rDelta))

	t := newTranscript(c.context, k, false)
	proofs, err := zk.Prove(t, knowledge, c.rand)
	if err != nil {
		return nil, nil, err
	}
	return &RealCredentialsRequest{
			Delta:     delta,
			Presented: presentations,
			Requested: requested,
			Proofs:    proofs,
		},
		&Validator{transcript: t, requested: attributes}, nil
}

// HandleResponse verifies the issuer's proofs in resp, and returns the credentials
// it issues for the request v was created with.
//
// A Validator must only be used once.
func (c *Client) HandleResponse(resp *CredentialsResponse, v *Validator) ([]*Credential, error) {
	if len(resp.IssuedCredentials) != len(v.requested) {
		return nil, protocol.Errorf(protocol.IssuedCredentialNumberMismatch,
			"got %d, expected %d", len(resp.IssuedCredentials), len(v.requested))
	}
	statements := make([]*zk.Statement, len(v.requested))
	for j, attr := range v.requested {
		mac := &resp.IssuedCredentials[j]
		if err := mac.validate(); err != nil {
			return nil, &protocol.Error{Code: protocol.ClientReceivedInvalidProofs, Err: err}
		}
		statements[j] = IssuerParametersStatement(c.params, mac, attr.Ma)
	}
	if !zk.Verify(v.transcript, statements, resp.Proofs, nil) {
		return nil, protocol.NewError(protocol.ClientReceivedInvalidProofs)
	}

	credentials := make([]*Credential, len(v.requested))
	for j, attr := range v.requested {
		mac := resp.IssuedCredentials[j]
		credentials[j] = &Credential{Value: attr.Value, Randomness: attr.Randomness, Mac: &mac}
	}
	return credentials, nil
}

// Values returns the values a validator's request asked for.
func (v *Validator) Values() []uint64 {
	out := make([]uint64, len(v.requested))
	for i, a := range v.requested {
		out[i] = a.Value
	}
	return out
}
