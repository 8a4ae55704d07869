package credential

import (
	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/zk"
)

// IssuerParametersStatement states that mac was computed on ma with the secret
// key behind params. The witness is (W, W', X0, X1, Ya).
func IssuerParametersStatement(params *IssuerParameters, mac *MAC, ma *curve.Point) *zk.Statement {
	u := generatorU(mac.T)
	tu := curve.NewIdentityPoint().ScalarMult(mac.T, u)
	return &zk.Statement{Equations: []zk.Equation{
		// V = W⋅Gw + X0⋅U + X1⋅(T⋅U) + Ya⋅Ma
		{Public: mac.V, Generators: []*curve.Point{Gw, nil, u, tu, ma}},
		// GV - I = X0⋅Gx0 + X1⋅Gx1 + Ya⋅Ga
		{Public: curve.NewIdentityPoint().Sub(GV, params.I), Generators: []*curve.Point{nil, nil, Gx0, Gx1, Ga}},
		// Cw = W⋅Gw + W'⋅Gw'
		{Public: params.Cw, Generators: []*curve.Point{Gw, Gwp, nil, nil, nil}},
	}}
}

// IssuerParametersKnowledge proves IssuerParametersStatement with sk.
func IssuerParametersKnowledge(sk *SecretKey, mac *MAC, ma *curve.Point) zk.Knowledge {
	return zk.Knowledge{
		Statement: IssuerParametersStatement(sk.Parameters(), mac, ma),
		Witness:   []*curve.Scalar{sk.W, sk.Wp, sk.X0, sk.X1, sk.Ya},
	}
}

// ShowCredentialStatement states that p randomizes a valid credential, given
// Z = z⋅I as recomputed by the issuer. The witness is (z, -T⋅z, T, a, r).
func ShowCredentialStatement(p *Presentation, z *curve.Point, params *IssuerParameters) *zk.Statement {
	return &zk.Statement{Equations: []zk.Equation{
		// Z = z⋅I
		{Public: z, Generators: []*curve.Point{params.I, nil, nil, nil, nil}},
		// Cx1 = z⋅Gx1 + z0⋅Gx0 + T⋅Cx0
		{Public: p.Cx1, Generators: []*curve.Point{Gx1, Gx0, p.Cx0, nil, nil}},
		// Ca = z⋅Ga + a⋅Gg + r⋅Gh
		{Public: p.Ca, Generators: []*curve.Point{Ga, nil, nil, Gg, Gh}},
		// S = r⋅Gs
		{Public: p.S, Generators: []*curve.Point{nil, nil, nil, nil, Gs}},
	}}
}

// ShowCredentialKnowledge proves ShowCredentialStatement for the presentation
// of c randomized with z.
func ShowCredentialKnowledge(p *Presentation, z *curve.Scalar, c *Credential, params *IssuerParameters) zk.Knowledge {
	bigZ := curve.NewIdentityPoint().ScalarMult(z, params.I)
	z0 := curve.NewScalar().Mul(c.Mac.T, z)
	z0.Negate(z0)
	return zk.Knowledge{
		Statement: ShowCredentialStatement(p, bigZ, params),
		Witness: []*curve.Scalar{
			z, z0, c.Mac.T, curve.NewScalarUint64(c.Value), c.Randomness,
		},
	}
}

// RangeProofStatement states that ma commits to Σ 2ⁱ⋅bᵢ where each bitCommitments[i]
// commits to a bit bᵢ. The witness is r followed by (bᵢ, rᵢ, rᵢ⋅(1-bᵢ)) for each bit.
func RangeProofStatement(ma *curve.Point, bitCommitments []*curve.Point) *zk.Statement {
	width := 1 + 3*len(bitCommitments)

	// Ma - Σ 2ⁱ⋅Bᵢ = r⋅Gh - Σ rᵢ⋅2ⁱ⋅Gh
	sum := curve.NewIdentityPoint()
	sumRow := make([]*curve.Point, width)
	sumRow[0] = Gh
	for i, b := range bitCommitments {
		pow := curve.NewScalarUint64(1 << uint(i))
		sum.Add(sum, curve.NewIdentityPoint().ScalarMult(pow, b))
		sumRow[2+3*i] = curve.NewIdentityPoint().Negate(curve.NewIdentityPoint().ScalarMult(pow, Gh))
	}
	equations := []zk.Equation{
		{Public: curve.NewIdentityPoint().Sub(ma, sum), Generators: sumRow},
	}

	for i, b := range bitCommitments {
		// Bᵢ = bᵢ⋅Gg + rᵢ⋅Gh
		opening := make([]*curve.Point, width)
		opening[1+3*i] = Gg
		opening[2+3*i] = Gh
		// Bᵢ = bᵢ⋅Bᵢ + kᵢ⋅Gh, which forces bᵢ² = bᵢ
		isBit := make([]*curve.Point, width)
		isBit[1+3*i] = b
		isBit[3+3*i] = Gh
		equations = append(equations,
			zk.Equation{Public: b, Generators: opening},
			zk.Equation{Public: b, Generators: isBit},
		)
	}
	return &zk.Statement{Equations: equations}
}

// RangeProofKnowledge commits to the bits of value with the given randomness, and
// proves RangeProofStatement. bitRandomness must have one scalar per bit.
func RangeProofKnowledge(value uint64, r *curve.Scalar, bitRandomness []*curve.Scalar) (zk.Knowledge, []*curve.Point) {
	bitCommitments := make([]*curve.Point, len(bitRandomness))
	witness := make([]*curve.Scalar, 0, 1+3*len(bitRandomness))
	witness = append(witness, r)
	for i, ri := range bitRandomness {
		bit := (value >> uint(i)) & 1
		bitCommitments[i] = commit(bit, ri)
		k := curve.NewScalar()
		if bit == 0 {
			k.Set(ri)
		}
		witness = append(witness, curve.NewScalarUint64(bit), ri, k)
	}
	return zk.Knowledge{
		Statement: RangeProofStatement(commit(value, r), bitCommitments),
		Witness:   witness,
	}, bitCommitments
}

// ZeroProofStatement states that ma = r⋅Gh, i.e. that it commits to 0.
func ZeroProofStatement(ma *curve.Point) *zk.Statement {
	return &zk.Statement{Equations: []zk.Equation{
		{Public: ma, Generators: []*curve.Point{Gh}},
	}}
}

// ZeroProofKnowledge proves ZeroProofStatement for the commitment to 0 with randomness r.
func ZeroProofKnowledge(ma *curve.Point, r *curve.Scalar) zk.Knowledge {
	return zk.Knowledge{
		Statement: ZeroProofStatement(ma),
		Witness:   []*curve.Scalar{r},
	}
}

// BalanceCommitment returns Σ Caᵢ - Σ Maⱼ + delta⋅Gg.
//
// When the requested values exceed the presented ones by exactly delta, this is
// (Σ zᵢ)⋅Ga + (Σ rᵢ - Σ r'ⱼ)⋅Gh.
func BalanceCommitment(presented []*curve.Point, requested []*curve.Point, delta int64) *curve.Point {
	sum := curve.NewIdentityPoint().ScalarMult(curve.NewScalarInt64(delta), Gg)
	for _, ca := range presented {
		sum.Add(sum, ca)
	}
	for _, ma := range requested {
		sum.Sub(sum, ma)
	}
	return sum
}

// BalanceProofStatement states that balance = zSum⋅Ga + rDelta⋅Gh.
func BalanceProofStatement(balance *curve.Point) *zk.Statement {
	return &zk.Statement{Equations: []zk.Equation{
		{Public: balance, Generators: []*curve.Point{Ga, Gh}},
	}}
}

// BalanceProofKnowledge proves BalanceProofStatement.
func BalanceProofKnowledge(balance *curve.Point, zSum, rDelta *curve.Scalar) zk.Knowledge {
	return zk.Knowledge{
		Statement: BalanceProofStatement(balance),
		Witness:   []*curve.Scalar{zSum, rDelta},
	}
}
