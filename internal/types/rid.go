package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/internal/params"
)

// RID is a 32 byte identifier, used for rounds and for registered inputs.
//
// The zero RID is considered invalid.
type RID [params.SecBytes]byte

// NewRID samples a uniformly random RID from r.
func NewRID(r io.Reader) (RID, error) {
	var rid RID
	if _, err := io.ReadFull(r, rid[:]); err != nil {
		return RID{}, fmt.Errorf("rid: %w", err)
	}
	return rid, nil
}

// RIDFromBytes copies a 32 byte slice into a RID.
func RIDFromBytes(b []byte) (RID, error) {
	var rid RID
	if len(b) != len(rid) {
		return RID{}, fmt.Errorf("rid: incorrect length (got %d, expected %d)", len(b), len(rid))
	}
	copy(rid[:], b)
	return rid, nil
}

// WriteTo implements io.WriterTo interface.
func (rid RID) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(rid[:])
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (RID) Domain() string { return "RID" }

// Validate ensures that the RID is not identically 0.
func (rid RID) Validate() error {
	if rid.IsZero() {
		return errors.New("rid: rid is 0")
	}
	return nil
}

// IsZero returns true if every byte of rid is 0.
func (rid RID) IsZero() bool {
	return rid == RID{}
}

// String returns the hex encoding of rid.
func (rid RID) String() string {
	return hex.EncodeToString(rid[:])
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (rid RID) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(rid))
	copy(out, rid[:])
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (rid *RID) UnmarshalBinary(data []byte) error {
	r, err := RIDFromBytes(data)
	if err != nil {
		return err
	}
	*rid = r
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (rid RID) MarshalText() ([]byte, error) {
	return []byte(rid.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (rid *RID) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("rid: %w", err)
	}
	return rid.UnmarshalBinary(b)
}
