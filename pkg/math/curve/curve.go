// Package curve implements the secp256k1 scalar field and group used by the
// credential scheme.
//
// Both Scalar and Point follow the setter convention of math/big: methods set
// the receiver to the result of an operation on their arguments and return it,
// so that calls can be chained without allocating intermediates.
package curve

import (
	"github.com/cronokirby/saferith"
)

// Order returns the order of the secp256k1 group.
func Order() *saferith.Modulus {
	return order
}

var order = saferith.ModulusFromBytes([]byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
	0xba, 0xae, 0xdc, 0xe6, 0xaf, 0x48, 0xa0, 0x3b,
	0xbf, 0xd2, 0x5e, 0x8c, 0xd0, 0x36, 0x41, 0x41,
})

// FromHash converts a hash value to a Scalar.
//
// The hash is truncated to the bit-length of the group order and reduced, as in
// crypto/ecdsa. Callers needing uniform scalars should use sample.Scalar on a
// hash digest instead.
func FromHash(h []byte) *Scalar {
	orderBits := order.BitLen()
	orderBytes := (orderBits + 7) / 8
	if len(h) > orderBytes {
		h = h[:orderBytes]
	}
	s := new(saferith.Nat).SetBytes(h)
	excess := len(h)*8 - orderBits
	if excess > 0 {
		s.Rsh(s, uint(excess), -1)
	}
	return NewScalar().SetNat(s)
}

// MultiScalarMult returns Σ scalars[i]·points[i].
//
// A nil point is treated as the identity, matching the zero entries of a
// statement's generator matrix.
func MultiScalarMult(scalars []*Scalar, points []*Point) *Point {
	if len(scalars) != len(points) {
		panic("curve.MultiScalarMult: length mismatch")
	}
	sum := NewIdentityPoint()
	var term Point
	for i := range scalars {
		if points[i] == nil {
			continue
		}
		sum.Add(sum, term.ScalarMult(scalars[i], points[i]))
	}
	return sum
}
