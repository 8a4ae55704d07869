package hash

import (
	"encoding/binary"
	"io"
)

// WriterToWithDomain represents a type writing itself, and knowing its domain.
//
// Providing a domain string lets us distinguish the output of different types
// implementing this same interface.
type WriterToWithDomain interface {
	io.WriterTo

	// Domain returns a context string, which should be unique for each implementor
	Domain() string
}

// writeWithDomain writes out a piece of data, using its domain.
//
// Both the domain and the data are length prefixed, so that no two distinct
// sequences of writes produce the same byte stream.
func writeWithDomain(w io.Writer, object WriterToWithDomain) error {
	domain := object.Domain()
	if err := writeLength(w, len(domain)); err != nil {
		return err
	}
	if _, err := w.Write([]byte(domain)); err != nil {
		return err
	}
	// the object is buffered so that its length can be written first
	var buf lengthCounter
	if _, err := object.WriteTo(&buf); err != nil {
		return err
	}
	if err := writeLength(w, len(buf)); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

func writeLength(w io.Writer, l int) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(l))
	_, err := w.Write(lenBuf[:])
	return err
}

type lengthCounter []byte

func (b *lengthCounter) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

// BytesWithDomain is a useful wrapper to annotate some chunk of data with a domain.
//
// The intention is to wrap some data using this struct, and then call WriteAny,
// or use this struct as a WriterToWithDomain somewhere else.
type BytesWithDomain struct {
	TheDomain string
	Bytes     []byte
}

// WriteTo implements io.WriterTo.
func (b BytesWithDomain) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.Bytes)
	return int64(n), err
}

// Domain implements WriterToWithDomain.
func (b BytesWithDomain) Domain() string {
	return b.TheDomain
}
