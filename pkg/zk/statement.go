// Package zk implements non-interactive proofs of knowledge of a witness
// satisfying a system of linear equations over the secp256k1 group.
//
// A Statement is a matrix of generators together with one public point per row.
// A witness w satisfies it when, for every row i,
//
//	Public[i] = Σⱼ w[j]⋅Generators[i][j]
//
// Proofs are Sigma protocols made non-interactive with a transcript.Transcript.
// Several statements proven together share a single challenge.
package zk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
)

// Equation is one row of a Statement.
//
// A nil generator stands for the identity, meaning the corresponding witness
// scalar does not appear in this equation.
type Equation struct {
	Public     *curve.Point
	Generators []*curve.Point
}

// Statement is a system of linear equations sharing the same witness.
type Statement struct {
	Equations []Equation
}

var ErrMalformedStatement = errors.New("zk: malformed statement")

// NewStatement returns a statement after checking that every equation has a
// public point and the same number of generators.
func NewStatement(equations ...Equation) (*Statement, error) {
	if len(equations) == 0 {
		return nil, fmt.Errorf("%w: no equations", ErrMalformedStatement)
	}
	width := len(equations[0].Generators)
	if width == 0 {
		return nil, fmt.Errorf("%w: no generators", ErrMalformedStatement)
	}
	for i, eq := range equations {
		if eq.Public == nil {
			return nil, fmt.Errorf("%w: equation %d has no public point", ErrMalformedStatement, i)
		}
		if len(eq.Generators) != width {
			return nil, fmt.Errorf("%w: equation %d has %d generators, expected %d",
				ErrMalformedStatement, i, len(eq.Generators), width)
		}
	}
	return &Statement{Equations: equations}, nil
}

// Width returns the number of witness scalars.
func (s *Statement) Width() int {
	if len(s.Equations) == 0 {
		return 0
	}
	return len(s.Equations[0].Generators)
}

// IsSatisfiedBy returns true if witness satisfies every equation of s.
func (s *Statement) IsSatisfiedBy(witness []*curve.Scalar) bool {
	if len(witness) != s.Width() {
		return false
	}
	for _, eq := range s.Equations {
		if !curve.MultiScalarMult(witness, eq.Generators).Equal(eq.Public) {
			return false
		}
	}
	return true
}

// WriteTo implements io.WriterTo and should be used within the hash.Hash function.
//
// The dimensions are written first, followed by each public point and its row
// of generators. Nil generators are written as the identity.
func (s *Statement) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var dims [4]byte
	binary.BigEndian.PutUint16(dims[:2], uint16(len(s.Equations)))
	binary.BigEndian.PutUint16(dims[2:], uint16(s.Width()))
	n, err := w.Write(dims[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	identity := curve.NewIdentityPoint()
	for _, eq := range s.Equations {
		n64, err := eq.Public.WriteTo(w)
		total += n64
		if err != nil {
			return total, err
		}
		for _, g := range eq.Generators {
			if g == nil {
				g = identity
			}
			n64, err = g.WriteTo(w)
			total += n64
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Domain implements hash.WriterToWithDomain, and separates this type within hash.Hash.
func (*Statement) Domain() string {
	return "zk.Statement"
}

// Knowledge is a statement together with a witness satisfying it.
type Knowledge struct {
	Statement *Statement
	Witness   []*curve.Scalar
}
