package zk

import (
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/pool"
	"github.com/zkcoinjoin/wabisabi/pkg/transcript"
)

// Proof is a non-interactive proof for a single Statement.
//
// PublicNonces holds one point per equation, Responses one scalar per witness element.
type Proof struct {
	PublicNonces []*curve.Point  `json:"publicNonces"`
	Responses    []*curve.Scalar `json:"responses"`
}

// Prove returns one proof per element of knowledge, all sharing the challenge
// derived from t.
//
// The statements are committed to t in order, then the public nonces of each
// proof. t is left in the state reached after the challenge, so that further
// proofs can continue the same transcript.
func Prove(t *transcript.Transcript, knowledge []Knowledge, rand io.Reader) ([]Proof, error) {
	for i, k := range knowledge {
		if k.Statement == nil || len(k.Witness) != k.Statement.Width() {
			return nil, fmt.Errorf("zk.Prove: knowledge %d: witness does not match statement", i)
		}
		t.CommitStatement(k.Statement)
	}

	nonces := make([][]*curve.Scalar, len(knowledge))
	proofs := make([]Proof, len(knowledge))
	for i, k := range knowledge {
		provider, err := t.SyntheticNonces(k.Witness, rand)
		if err != nil {
			return nil, fmt.Errorf("zk.Prove: %w", err)
		}
		nonces[i] = provider.Take(len(k.Witness))

		publicNonces := make([]*curve.Point, len(k.Statement.Equations))
		for j, eq := range k.Statement.Equations {
			publicNonces[j] = curve.MultiScalarMult(nonces[i], eq.Generators)
		}
		t.CommitPublicNonces(publicNonces)
		proofs[i].PublicNonces = publicNonces
	}

	c := t.GenerateChallenge()
	for i, k := range knowledge {
		responses := make([]*curve.Scalar, len(k.Witness))
		for j, w := range k.Witness {
			// sⱼ = kⱼ + c⋅wⱼ
			responses[j] = curve.NewScalar().MulAdd(c, w, nonces[i][j])
		}
		proofs[i].Responses = responses
	}
	return proofs, nil
}

// Verify checks proofs against statements under the transcript t, which must be
// in the same state the prover's transcript was in when Prove was called.
//
// Every equation of every statement is evaluated, on pl when it is non-nil,
// before the results are combined. Proofs with missing values, mismatched
// dimensions or identity public nonces are rejected.
func Verify(t *transcript.Transcript, statements []*Statement, proofs []Proof, pl *pool.Pool) bool {
	if len(statements) != len(proofs) {
		return false
	}
	wellFormed := true
	for i, s := range statements {
		if s == nil {
			return false
		}
		wellFormed = proofs[i].wellFormed(s) && wellFormed
	}
	if !wellFormed {
		return false
	}

	for _, s := range statements {
		t.CommitStatement(s)
	}
	for _, p := range proofs {
		t.CommitPublicNonces(p.PublicNonces)
	}
	c := t.GenerateChallenge()

	type row struct {
		eq       Equation
		nonce    *curve.Point
		response []*curve.Scalar
	}
	var rows []row
	for i, s := range statements {
		for j, eq := range s.Equations {
			rows = append(rows, row{eq: eq, nonce: proofs[i].PublicNonces[j], response: proofs[i].Responses})
		}
	}

	return pl.All(len(rows), func(i int) bool {
		r := rows[i]
		// Σⱼ sⱼ⋅Gⱼ = R + c⋅P
		lhs := curve.MultiScalarMult(r.response, r.eq.Generators)
		rhs := curve.NewIdentityPoint().ScalarMult(c, r.eq.Public)
		rhs.Add(rhs, r.nonce)
		return lhs.Equal(rhs)
	})
}

func (p *Proof) wellFormed(s *Statement) bool {
	if len(p.PublicNonces) != len(s.Equations) || len(p.Responses) != s.Width() {
		return false
	}
	for _, n := range p.PublicNonces {
		if n == nil || n.IsIdentity() {
			return false
		}
	}
	for _, r := range p.Responses {
		if r == nil {
			return false
		}
	}
	return true
}
