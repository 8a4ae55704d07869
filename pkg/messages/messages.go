// Package messages defines the requests a client sends to a round's coordinator,
// and the coordinator's responses.
//
// Messages encode to JSON and to canonical CBOR. Two messages are Equal when their
// canonical encodings are identical.
package messages

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/zkcoinjoin/wabisabi/internal/types"
	"github.com/zkcoinjoin/wabisabi/pkg/credential"
	"github.com/zkcoinjoin/wabisabi/pkg/ownership"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
)

// AliceID identifies a registered input within a round.
type AliceID = types.RID

// InputRegistrationRequest registers a coin as an input of the round. The zero
// credential requests bootstrap the credentials the input will be converted to.
type InputRegistrationRequest struct {
	RoundID                      round.ID                           `json:"roundId"`
	Input                        wire.OutPoint                      `json:"input"`
	OwnershipProof               *ownership.Proof                   `json:"ownershipProof"`
	ZeroAmountCredentialRequests *credential.ZeroCredentialsRequest `json:"zeroAmountCredentialRequests"`
	ZeroVsizeCredentialRequests  *credential.ZeroCredentialsRequest `json:"zeroVsizeCredentialRequests"`
}

// InputRegistrationResponse identifies the new Alice, and carries her zero credentials.
type InputRegistrationResponse struct {
	AliceID           AliceID                         `json:"aliceId"`
	AmountCredentials *credential.CredentialsResponse `json:"amountCredentials"`
	VsizeCredentials  *credential.CredentialsResponse `json:"vsizeCredentials"`
}

// ConnectionConfirmationRequest keeps an Alice registered. Once the round is in
// ConnectionConfirmation, the real requests convert her input into credentials.
type ConnectionConfirmationRequest struct {
	RoundID                      round.ID                           `json:"roundId"`
	AliceID                      AliceID                            `json:"aliceId"`
	ZeroAmountCredentialRequests *credential.ZeroCredentialsRequest `json:"zeroAmountCredentialRequests"`
	RealAmountCredentialRequests *credential.RealCredentialsRequest `json:"realAmountCredentialRequests"`
	ZeroVsizeCredentialRequests  *credential.ZeroCredentialsRequest `json:"zeroVsizeCredentialRequests"`
	RealVsizeCredentialRequests  *credential.RealCredentialsRequest `json:"realVsizeCredentialRequests"`
}

// ConnectionConfirmationResponse holds the credentials issued on confirmation.
// The real credentials are nil until the round is in ConnectionConfirmation.
type ConnectionConfirmationResponse struct {
	ZeroAmountCredentials *credential.CredentialsResponse `json:"zeroAmountCredentials"`
	ZeroVsizeCredentials  *credential.CredentialsResponse `json:"zeroVsizeCredentials"`
	RealAmountCredentials *credential.CredentialsResponse `json:"realAmountCredentials,omitempty"`
	RealVsizeCredentials  *credential.CredentialsResponse `json:"realVsizeCredentials,omitempty"`
}

// OutputRegistrationRequest spends credentials for an output paying Script.
// Both requests ask for zero-valued credentials, so that -Delta is the value spent.
type OutputRegistrationRequest struct {
	RoundID                  round.ID                           `json:"roundId"`
	Script                   []byte                             `json:"script"`
	AmountCredentialRequests *credential.RealCredentialsRequest `json:"amountCredentialRequests"`
	VsizeCredentialRequests  *credential.RealCredentialsRequest `json:"vsizeCredentialRequests"`
}

// ReissueCredentialRequest exchanges credentials for others of the same total value.
type ReissueCredentialRequest struct {
	RoundID                      round.ID                           `json:"roundId"`
	RealAmountCredentialRequests *credential.RealCredentialsRequest `json:"realAmountCredentialRequests"`
	RealVsizeCredentialRequests  *credential.RealCredentialsRequest `json:"realVsizeCredentialRequests"`
	ZeroAmountCredentialRequests *credential.ZeroCredentialsRequest `json:"zeroAmountCredentialRequests"`
	ZeroVsizeCredentialRequests  *credential.ZeroCredentialsRequest `json:"zeroVsizeCredentialRequests"`
}

// ReissueCredentialResponse holds the credentials issued for a ReissueCredentialRequest.
type ReissueCredentialResponse struct {
	RealAmountCredentials *credential.CredentialsResponse `json:"realAmountCredentials"`
	RealVsizeCredentials  *credential.CredentialsResponse `json:"realVsizeCredentials"`
	ZeroAmountCredentials *credential.CredentialsResponse `json:"zeroAmountCredentials"`
	ZeroVsizeCredentials  *credential.CredentialsResponse `json:"zeroVsizeCredentials"`
}

// InputsRemovalRequest unregisters an Alice during InputRegistration.
type InputsRemovalRequest struct {
	RoundID round.ID `json:"roundId"`
	AliceID AliceID  `json:"aliceId"`
}

// InputWitnessPair is the witness of the input at InputIndex.
type InputWitnessPair struct {
	InputIndex uint32         `json:"inputIndex"`
	Witness    wire.TxWitness `json:"witness"`
}

// TransactionSignaturesRequest signs inputs of the round's transaction.
type TransactionSignaturesRequest struct {
	RoundID           round.ID           `json:"roundId"`
	InputWitnessPairs []InputWitnessPair `json:"inputWitnessPairs"`
}

// Marshal returns the canonical CBOR encoding of a message.
func Marshal(msg interface{}) ([]byte, error) {
	return types.CanonicalMarshal(msg)
}

// Unmarshal decodes a message encoded by Marshal.
func Unmarshal(data []byte, msg interface{}) error {
	return types.CanonicalUnmarshal(data, msg)
}

// Equal reports whether m and other are structurally equal.
func (m *InputRegistrationRequest) Equal(other *InputRegistrationRequest) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *InputRegistrationResponse) Equal(other *InputRegistrationResponse) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *ConnectionConfirmationRequest) Equal(other *ConnectionConfirmationRequest) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *ConnectionConfirmationResponse) Equal(other *ConnectionConfirmationResponse) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *OutputRegistrationRequest) Equal(other *OutputRegistrationRequest) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *ReissueCredentialRequest) Equal(other *ReissueCredentialRequest) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *ReissueCredentialResponse) Equal(other *ReissueCredentialResponse) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *InputsRemovalRequest) Equal(other *InputsRemovalRequest) bool {
	return types.StructurallyEqual(m, other)
}

// Equal reports whether m and other are structurally equal.
func (m *TransactionSignaturesRequest) Equal(other *TransactionSignaturesRequest) bool {
	return types.StructurallyEqual(m, other)
}
