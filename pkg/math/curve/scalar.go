package curve

import (
	"encoding/binary"
	"io"

	"github.com/cronokirby/saferith"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zkcoinjoin/wabisabi/internal/params"
)

// Scalar is an element of ℤ/qℤ, where q is the order of secp256k1.
//
// The zero value is a valid scalar equal to 0.
type Scalar struct {
	s secp256k1.ModNScalar
}

// NewScalar returns a new zero Scalar.
func NewScalar() *Scalar {
	return &Scalar{}
}

// NewScalarUint64 returns a new Scalar equal to x.
func NewScalarUint64(x uint64) *Scalar {
	return NewScalar().SetUint64(x)
}

// NewScalarInt64 returns a new Scalar equal to x mod q.
func NewScalarInt64(x int64) *Scalar {
	if x >= 0 {
		return NewScalarUint64(uint64(x))
	}
	// -x overflows for math.MinInt64, but the uint64 conversion wraps correctly.
	s := NewScalarUint64(uint64(-x))
	return s.Negate(s)
}

// Set sets s = x, and returns s.
func (s *Scalar) Set(x *Scalar) *Scalar {
	s.s.Set(&x.s)
	return s
}

// SetUint64 sets s = x, and returns s.
func (s *Scalar) SetUint64(x uint64) *Scalar {
	var buf [32]byte
	binary.BigEndian.PutUint64(buf[24:], x)
	s.s.SetBytes(&buf)
	return s
}

// SetNat sets s = x mod q, and returns s.
func (s *Scalar) SetNat(x *saferith.Nat) *Scalar {
	reduced := new(saferith.Nat).Mod(x, order)
	var buf [32]byte
	reduced.FillBytes(buf[:])
	s.s.SetBytes(&buf)
	return s
}

// Add sets s = x + y mod q, and returns s.
func (s *Scalar) Add(x, y *Scalar) *Scalar {
	s.s.Add2(&x.s, &y.s)
	return s
}

// Sub sets s = x - y mod q, and returns s.
func (s *Scalar) Sub(x, y *Scalar) *Scalar {
	var yNeg secp256k1.ModNScalar
	yNeg.NegateVal(&y.s)
	s.s.Add2(&x.s, &yNeg)
	return s
}

// Negate sets s = -x mod q, and returns s.
func (s *Scalar) Negate(x *Scalar) *Scalar {
	s.s.NegateVal(&x.s)
	return s
}

// Mul sets s = x * y mod q, and returns s.
func (s *Scalar) Mul(x, y *Scalar) *Scalar {
	s.s.Mul2(&x.s, &y.s)
	return s
}

// MulAdd sets s = x * y + z mod q, and returns s.
func (s *Scalar) MulAdd(x, y, z *Scalar) *Scalar {
	var r secp256k1.ModNScalar
	r.Mul2(&x.s, &y.s)
	r.Add(&z.s)
	s.s.Set(&r)
	return s
}

// Invert sets s to the inverse of a nonzero scalar x, and returns s.
//
// The inverse of 0 is 0.
func (s *Scalar) Invert(x *Scalar) *Scalar {
	s.s.InverseValNonConst(&x.s)
	return s
}

// Equal returns true if s and x are equal.
func (s *Scalar) Equal(x *Scalar) bool {
	return s.s.Equals(&x.s)
}

// IsZero returns true if s = 0.
func (s *Scalar) IsZero() bool {
	return s.s.IsZero()
}

// Bytes returns the canonical 32 bytes big-endian encoding of s.
func (s *Scalar) Bytes() []byte {
	b := s.s.Bytes()
	return b[:]
}

// Clone returns a copy of s.
func (s *Scalar) Clone() *Scalar {
	return NewScalar().Set(s)
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
func (s *Scalar) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, params.BytesScalar)
	s.s.PutBytesUnchecked(buf)
	n, err := w.Write(buf)
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*Scalar) Domain() string {
	return "curve.Scalar"
}
