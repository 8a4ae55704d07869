package curve

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/zkcoinjoin/wabisabi/internal/params"
)

// ErrIdentity is returned when the point at infinity is encoded or decoded.
//
// The identity never appears on the wire: every point exchanged by the protocol
// is a commitment or a proof nonce, and accepting the identity there breaks soundness.
var ErrIdentity = errors.New("curve.Point: identity")

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Scalar) MarshalBinary() ([]byte, error) {
	data := make([]byte, params.BytesScalar)
	s.s.PutBytesUnchecked(data)
	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	if len(data) != params.BytesScalar {
		return fmt.Errorf("curve.Scalar.Unmarshal: invalid length %d", len(data))
	}
	var scalar secp256k1.ModNScalar
	if scalar.SetByteSlice(data) {
		return errors.New("curve.Scalar.Unmarshal: scalar was >= q")
	}
	s.s.Set(&scalar)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s *Scalar) MarshalJSON() ([]byte, error) {
	data, _ := s.MarshalBinary()
	return json.Marshal(data)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(bytes []byte) error {
	var data []byte
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("curve.Scalar: failed to unmarshal: %w", err)
	}
	return s.UnmarshalBinary(data)
}

// MarshalBinary implements encoding.BinaryMarshaler.
//
// Points are encoded in the 33 byte compressed SEC format.
func (v *Point) MarshalBinary() ([]byte, error) {
	if v == nil {
		return nil, errors.New("curve.Point.MarshalBinary: point is nil")
	}
	if v.IsIdentity() {
		return nil, ErrIdentity
	}
	a := v.affine()
	data := make([]byte, params.BytesPoint)
	// Choose the format byte depending on the oddness of the Y coordinate.
	data[0] = secp256k1.PubKeyFormatCompressedEven
	if a.Y.IsOdd() {
		data[0] = secp256k1.PubKeyFormatCompressedOdd
	}
	a.X.PutBytesUnchecked(data[1:])
	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (v *Point) UnmarshalBinary(data []byte) error {
	if len(data) != params.BytesPoint {
		return fmt.Errorf("curve.Point.Unmarshal: invalid length %d", len(data))
	}
	format := data[0]
	if !(format == secp256k1.PubKeyFormatCompressedOdd || format == secp256k1.PubKeyFormatCompressedEven) {
		return errors.New("curve.Point.Unmarshal: incorrect format")
	}
	p, err := liftX(data[1:], format == secp256k1.PubKeyFormatCompressedOdd)
	if err != nil {
		return fmt.Errorf("curve.Point.Unmarshal: %w", err)
	}
	v.Set(p)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v *Point) MarshalJSON() ([]byte, error) {
	data, err := v.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(data)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Point) UnmarshalJSON(bytes []byte) error {
	var data []byte
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("curve.Point: failed to unmarshal compressed point: %w", err)
	}
	return v.UnmarshalBinary(data)
}

// LiftX returns the point with even y coordinate whose x coordinate is given
// by the 32 byte big-endian encoding x.
func LiftX(x []byte) (*Point, error) {
	return liftX(x, false)
}

func liftX(data []byte, odd bool) (*Point, error) {
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid x coordinate length %d", len(data))
	}
	var x, y secp256k1.FieldVal
	if overflow := x.SetByteSlice(data); overflow {
		return nil, errors.New("invalid point: x >= field prime")
	}
	if !secp256k1.DecompressY(&x, odd, &y) {
		return nil, errors.New("invalid point: x coordinate is not on the secp256k1 curve")
	}
	y.Normalize()
	var v Point
	v.p.X.Set(&x)
	v.p.Y.Set(&y)
	v.p.Z.SetInt(1)
	return &v, nil
}

// String implements fmt.Stringer.
func (v *Point) String() string {
	if v == nil {
		return "nil"
	}
	if v.IsIdentity() {
		return "Point{Identity}"
	}
	data, _ := v.MarshalBinary()
	return fmt.Sprintf("Point{%x}", data)
}

// String implements fmt.Stringer.
func (s *Scalar) String() string {
	if s == nil {
		return "nil"
	}
	return fmt.Sprintf("Scalar{%x}", s.Bytes())
}
