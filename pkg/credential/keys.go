// Package credential implements keyed-verification anonymous credentials over
// secp256k1, as used to move amounts and vsize budgets between the inputs and
// outputs of a CoinJoin without linking them.
//
// An Issuer holds a SecretKey and issues algebraic MACs on Pedersen commitments
// to values. A Client holding such a MAC can later present it, randomized so that
// the Issuer cannot link the presentation to the issuance, together with proofs
// that new requested values are in range and balance the presented ones.
package credential

import (
	"errors"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/math/sample"
)

// SecretKey is the issuer's MAC key. None of its scalars is zero.
type SecretKey struct {
	W, Wp, X0, X1, Ya *curve.Scalar
}

// IssuerParameters is the public counterpart of a SecretKey.
//
//	Cw = W⋅Gw + W'⋅Gw'
//	I  = GV - (X0⋅Gx0 + X1⋅Gx1 + Ya⋅Ga)
type IssuerParameters struct {
	Cw *curve.Point `json:"cw"`
	I  *curve.Point `json:"i"`
}

// NewSecretKey samples a fresh issuer key from rand.
func NewSecretKey(rand io.Reader) *SecretKey {
	return &SecretKey{
		W:  sample.ScalarNonZero(rand),
		Wp: sample.ScalarNonZero(rand),
		X0: sample.ScalarNonZero(rand),
		X1: sample.ScalarNonZero(rand),
		Ya: sample.ScalarNonZero(rand),
	}
}

// Validate returns an error if a scalar of sk is missing or zero.
func (sk *SecretKey) Validate() error {
	for _, s := range []*curve.Scalar{sk.W, sk.Wp, sk.X0, sk.X1, sk.Ya} {
		if s == nil || s.IsZero() {
			return errors.New("credential: secret key scalar is zero")
		}
	}
	return nil
}

// Parameters derives the public issuer parameters of sk.
func (sk *SecretKey) Parameters() *IssuerParameters {
	cw := curve.MultiScalarMult(
		[]*curve.Scalar{sk.W, sk.Wp},
		[]*curve.Point{Gw, Gwp})
	i := curve.MultiScalarMult(
		[]*curve.Scalar{sk.X0, sk.X1, sk.Ya},
		[]*curve.Point{Gx0, Gx1, Ga})
	i.Sub(GV, i)
	return &IssuerParameters{Cw: cw, I: i}
}

// Validate returns an error if a point of p is missing or the identity.
func (p *IssuerParameters) Validate() error {
	if p.Cw == nil || p.I == nil || p.Cw.IsIdentity() || p.I.IsIdentity() {
		return errors.New("credential: invalid issuer parameters")
	}
	return nil
}
