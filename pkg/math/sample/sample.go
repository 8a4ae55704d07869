// Package sample draws uniformly distributed values from a source of randomness.
package sample

import (
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/internal/params"
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
)

const maxIterations = 255

var ErrMaxIterations = fmt.Errorf("sample: failed to generate after %d iterations", maxIterations)

func mustReadBits(rand io.Reader, buf []byte) {
	for i := 0; i < maxIterations; i++ {
		if _, err := io.ReadFull(rand, buf); err == nil {
			return
		}
	}
	panic(ErrMaxIterations)
}

// Scalar returns a uniformly distributed scalar.
//
// Candidates are drawn from 32 bytes of rand and rejected if they are not
// reduced modulo the group order.
func Scalar(rand io.Reader) *curve.Scalar {
	var s curve.Scalar
	buffer := make([]byte, params.BytesScalar)
	for i := 0; i < maxIterations; i++ {
		mustReadBits(rand, buffer)
		if err := s.UnmarshalBinary(buffer); err == nil {
			return &s
		}
	}
	panic(ErrMaxIterations)
}

// ScalarNonZero returns a uniformly distributed nonzero scalar.
func ScalarNonZero(rand io.Reader) *curve.Scalar {
	for i := 0; i < maxIterations; i++ {
		if s := Scalar(rand); !s.IsZero() {
			return s
		}
	}
	panic(ErrMaxIterations)
}

// ScalarPointPair returns a random nonzero scalar s together with s⋅G.
func ScalarPointPair(rand io.Reader) (*curve.Scalar, *curve.Point) {
	s := ScalarNonZero(rand)
	return s, curve.NewIdentityPoint().ScalarBaseMult(s)
}
