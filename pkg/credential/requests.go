package credential

import (
	"github.com/zkcoinjoin/wabisabi/internal/types"
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/zk"
)

// IssuanceRequest asks for a MAC on Ma. BitCommitments are empty for zero
// requests, and hold one commitment per bit of the range otherwise.
type IssuanceRequest struct {
	Ma             *curve.Point   `json:"ma"`
	BitCommitments []*curve.Point `json:"bitCommitments"`
}

// ZeroCredentialsRequest asks for credentials of value 0, which need no
// presentation and let a client bootstrap later real requests.
type ZeroCredentialsRequest struct {
	Requested []IssuanceRequest `json:"requested"`
	Proofs    []zk.Proof        `json:"proofs"`
}

// RealCredentialsRequest spends the Presented credentials and asks for the
// Requested ones, whose total value exceeds the presented total by Delta.
type RealCredentialsRequest struct {
	Delta     int64             `json:"delta"`
	Presented []Presentation    `json:"presented"`
	Requested []IssuanceRequest `json:"requested"`
	Proofs    []zk.Proof        `json:"proofs"`
}

// CredentialsResponse holds one MAC per requested credential, and the proofs
// that each was computed with the issuer's published key.
type CredentialsResponse struct {
	IssuedCredentials []MAC      `json:"issuedCredentials"`
	Proofs            []zk.Proof `json:"proofs"`
}

// Request is implemented by *ZeroCredentialsRequest and *RealCredentialsRequest.
type Request interface {
	// IsNullRequest returns true for requests that present nothing and ask for zero values.
	IsNullRequest() bool
	// RequestedMa returns the commitments the issuer is asked to MAC.
	RequestedMa() []*curve.Point
	delta() int64
}

func (*ZeroCredentialsRequest) IsNullRequest() bool { return true }
func (*RealCredentialsRequest) IsNullRequest() bool { return false }

func (r *ZeroCredentialsRequest) RequestedMa() []*curve.Point { return requestedMa(r.Requested) }
func (r *RealCredentialsRequest) RequestedMa() []*curve.Point { return requestedMa(r.Requested) }

func (*ZeroCredentialsRequest) delta() int64   { return 0 }
func (r *RealCredentialsRequest) delta() int64 { return r.Delta }

func requestedMa(requested []IssuanceRequest) []*curve.Point {
	out := make([]*curve.Point, len(requested))
	for i := range requested {
		out[i] = requested[i].Ma
	}
	return out
}

// Equal reports whether r and other are structurally equal.
func (r *ZeroCredentialsRequest) Equal(other *ZeroCredentialsRequest) bool {
	return types.StructurallyEqual(r, other)
}

// Equal reports whether r and other are structurally equal.
func (r *RealCredentialsRequest) Equal(other *RealCredentialsRequest) bool {
	return types.StructurallyEqual(r, other)
}

// Equal reports whether r and other are structurally equal.
func (r *CredentialsResponse) Equal(other *CredentialsResponse) bool {
	return types.StructurallyEqual(r, other)
}
