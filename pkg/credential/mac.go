package credential

import (
	"errors"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/math/sample"
)

// MAC is an algebraic MAC on an attribute commitment Ma:
//
//	V = W⋅Gw + (X0 + X1⋅T)⋅U(T) + Ya⋅Ma
type MAC struct {
	T *curve.Scalar `json:"t"`
	V *curve.Point  `json:"v"`
}

// ComputeMAC returns the MAC of ma under sk with a fresh nonce drawn from rand.
func ComputeMAC(sk *SecretKey, ma *curve.Point, rand io.Reader) *MAC {
	return computeMAC(sk, ma, sample.ScalarNonZero(rand))
}

func computeMAC(sk *SecretKey, ma *curve.Point, t *curve.Scalar) *MAC {
	u := generatorU(t)
	x := curve.NewScalar().MulAdd(sk.X1, t, sk.X0)
	v := curve.MultiScalarMult(
		[]*curve.Scalar{sk.W, x, sk.Ya},
		[]*curve.Point{Gw, u, ma})
	return &MAC{T: t, V: v}
}

// Verify returns true if m is the MAC of ma under sk.
func (m *MAC) Verify(sk *SecretKey, ma *curve.Point) bool {
	if m.T == nil || m.V == nil || m.T.IsZero() || m.V.IsIdentity() {
		return false
	}
	return computeMAC(sk, ma, m.T).V.Equal(m.V)
}

func (m *MAC) validate() error {
	if m == nil || m.T == nil || m.V == nil {
		return errors.New("credential: incomplete MAC")
	}
	if m.T.IsZero() || m.V.IsIdentity() {
		return errors.New("credential: degenerate MAC")
	}
	return nil
}
