package round

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/zkcoinjoin/wabisabi/internal/hash"
	"github.com/zkcoinjoin/wabisabi/internal/types"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"github.com/zkcoinjoin/wabisabi/pkg/credential"
)

// ID identifies a round.
type ID = types.RID

// EndState records how a round ended.
type EndState int

const (
	NotFinished EndState = iota
	TransactionSigned
	AbortedNotEnoughInputs
	AbortedInsufficientFees
	AbortedSigningTimeout
)

// String implements fmt.Stringer.
func (e EndState) String() string {
	switch e {
	case NotFinished:
		return "NotFinished"
	case TransactionSigned:
		return "TransactionSigned"
	case AbortedNotEnoughInputs:
		return "AbortedNotEnoughInputs"
	case AbortedInsufficientFees:
		return "AbortedInsufficientFees"
	case AbortedSigningTimeout:
		return "AbortedSigningTimeout"
	default:
		return fmt.Sprintf("EndState(%d)", int(e))
	}
}

// State is a snapshot of a round. Snapshots are never modified once published.
type State struct {
	ID         ID
	Phase      Phase
	Parameters coinjoin.Parameters
	// CoinjoinState is a *coinjoin.ConstructionState before TransactionSigning,
	// and a *coinjoin.SigningState from then on.
	CoinjoinState coinjoin.State

	AmountIssuer             *credential.IssuerParameters
	VsizeIssuer              *credential.IssuerParameters
	MaxAmountCredentialValue uint64
	MaxVsizeCredentialValue  uint64

	// MaxVsizeAllocationPerAlice is the vsize budget of a single input.
	MaxVsizeAllocationPerAlice int64

	EndState EndState
}

// NewID derives the identifier of a round from its parameters and issuer keys.
//
// Issuer keys are sampled for every round, so that two rounds never share an ID.
func NewID(params coinjoin.Parameters, amountIssuer, vsizeIssuer *credential.IssuerParameters) ID {
	h := hash.New("round.ID")
	_ = h.WriteAny(
		uint64(params.FeeRate),
		uint64(params.AllowedInputAmounts.Min), uint64(params.AllowedInputAmounts.Max),
		uint64(params.AllowedOutputAmounts.Min), uint64(params.AllowedOutputAmounts.Max),
		uint64(params.MaxTransactionSize),
	)
	for _, t := range params.AllowedInputTypes {
		_ = h.WriteAny("input", uint64(t))
	}
	for _, t := range params.AllowedOutputTypes {
		_ = h.WriteAny("output", uint64(t))
	}
	if params.Network != nil {
		_ = h.WriteAny(params.Network.Name)
	}
	_ = h.WriteAny(amountIssuer.Cw, amountIssuer.I, vsizeIssuer.Cw, vsizeIssuer.I)

	var id ID
	copy(id[:], h.Sum())
	return id
}

// AmountIssuerContext binds amount credentials to the round.
func AmountIssuerContext(id ID) []byte {
	return append(append([]byte(nil), id[:]...), "amount"...)
}

// VsizeIssuerContext binds vsize credentials to the round.
func VsizeIssuerContext(id ID) []byte {
	return append(append([]byte(nil), id[:]...), "vsize"...)
}

// CoordinatorIdentifier is the identifier mixed into ownership proofs.
const CoordinatorIdentifier = "CoinJoinCoordinatorIdentifier"

// CommitmentData returns the data an ownership proof for this round commits to.
func CommitmentData(coordinatorIdentifier string, id ID) []byte {
	return append([]byte(coordinatorIdentifier), id[:]...)
}

// TransactionHash returns the txid of the round's unsigned transaction.
func (s *State) TransactionHash() chainhash.Hash {
	return s.CoinjoinState.CreateUnsignedTransaction().TxHash()
}

// Construction returns the construction state, or nil once the round is signing.
func (s *State) Construction() *coinjoin.ConstructionState {
	c, _ := s.CoinjoinState.(*coinjoin.ConstructionState)
	return c
}

// Signing returns the signing state, or nil while the round is under construction.
func (s *State) Signing() *coinjoin.SigningState {
	c, _ := s.CoinjoinState.(*coinjoin.SigningState)
	return c
}

// With returns a copy of s with the given phase and transaction state.
func (s *State) With(phase Phase, cj coinjoin.State) *State {
	c := *s
	c.Phase = phase
	c.CoinjoinState = cj
	return &c
}

// WithEnd returns a copy of s in the Ended phase, ended for reason.
func (s *State) WithEnd(reason EndState) *State {
	c := *s
	c.Phase = Ended
	c.EndState = reason
	return &c
}
