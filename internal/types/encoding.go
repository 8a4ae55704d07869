package types

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
)

// canonical encodes with the core deterministic rules of RFC 8949, so that two
// structurally equal values always have the same encoding.
var canonical cbor.EncMode

func init() {
	var err error
	canonical, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// CanonicalMarshal returns the deterministic CBOR encoding of v.
func CanonicalMarshal(v interface{}) ([]byte, error) {
	return canonical.Marshal(v)
}

// CanonicalUnmarshal decodes CBOR data produced by CanonicalMarshal into v.
func CanonicalUnmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// StructurallyEqual reports whether a and b have identical canonical encodings.
//
// Values that fail to encode are never equal to anything.
func StructurallyEqual(a, b interface{}) bool {
	da, err := CanonicalMarshal(a)
	if err != nil {
		return false
	}
	db, err := CanonicalMarshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(da, db)
}
