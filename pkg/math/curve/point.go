package curve

import (
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zkcoinjoin/wabisabi/internal/params"
)

// Point is an element of the secp256k1 group, stored in Jacobian coordinates.
//
// The zero value is the identity.
type Point struct {
	p secp256k1.JacobianPoint
}

// NewIdentityPoint returns the point at infinity.
func NewIdentityPoint() *Point {
	return &Point{}
}

// NewBasePoint returns a point initialized to the canonical generator G.
func NewBasePoint() *Point {
	return NewIdentityPoint().ScalarBaseMult(NewScalarUint64(1))
}

// Set sets v = u, and returns v.
func (v *Point) Set(u *Point) *Point {
	v.p.Set(&u.p)
	return v
}

// Add sets v = p + q, and returns v.
func (v *Point) Add(p, q *Point) *Point {
	var r secp256k1.JacobianPoint
	secp256k1.AddNonConst(&p.p, &q.p, &r)
	v.p.Set(&r)
	return v
}

// Sub sets v = p - q, and returns v.
func (v *Point) Sub(p, q *Point) *Point {
	var qNeg Point
	qNeg.Negate(q)
	return v.Add(p, &qNeg)
}

// Negate sets v = -p, and returns v.
func (v *Point) Negate(p *Point) *Point {
	v.Set(p)
	if v.IsIdentity() {
		return v
	}
	v.p.ToAffine()
	v.p.Y.Negate(1)
	v.p.Y.Normalize()
	return v
}

// ScalarMult sets v = x·q, and returns v.
func (v *Point) ScalarMult(x *Scalar, q *Point) *Point {
	if x.IsZero() || q.IsIdentity() {
		v.p = secp256k1.JacobianPoint{}
		return v
	}
	var in, r secp256k1.JacobianPoint
	in.Set(&q.p)
	secp256k1.ScalarMultNonConst(&x.s, &in, &r)
	v.p.Set(&r)
	return v
}

// ScalarBaseMult sets v = x·G, where G is the canonical generator, and returns v.
func (v *Point) ScalarBaseMult(x *Scalar) *Point {
	if x.IsZero() {
		v.p = secp256k1.JacobianPoint{}
		return v
	}
	var r secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&x.s, &r)
	v.p.Set(&r)
	return v
}

// IsIdentity returns true if v is the point at infinity.
func (v *Point) IsIdentity() bool {
	return (v.p.X.IsZero() && v.p.Y.IsZero()) || v.p.Z.IsZero()
}

// Equal returns true if v and u represent the same group element.
func (v *Point) Equal(u *Point) bool {
	vID, uID := v.IsIdentity(), u.IsIdentity()
	if vID || uID {
		return vID == uID
	}
	a, b := v.affine(), u.affine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y)
}

// HasEvenY returns true if the affine y coordinate of v is even.
func (v *Point) HasEvenY() bool {
	a := v.affine()
	return !a.Y.IsOdd()
}

// XBytes returns the 32 byte big-endian encoding of the affine x coordinate.
func (v *Point) XBytes() []byte {
	a := v.affine()
	return a.X.Bytes()[:]
}

// Clone returns a copy of v.
func (v *Point) Clone() *Point {
	return NewIdentityPoint().Set(v)
}

// affine returns a normalized copy of v, leaving v untouched so that
// concurrent readers of a shared point never observe a representation change.
func (v *Point) affine() secp256k1.JacobianPoint {
	var a secp256k1.JacobianPoint
	a.Set(&v.p)
	a.ToAffine()
	return a
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
//
// The identity is written as 33 zero bytes, so that it can still be absorbed by a
// transcript which will then reject the statement.
func (v *Point) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, params.BytesPoint)
	if !v.IsIdentity() {
		data, err := v.MarshalBinary()
		if err != nil {
			return 0, err
		}
		copy(buf, data)
	}
	n, err := w.Write(buf)
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*Point) Domain() string {
	return "curve.Point"
}
