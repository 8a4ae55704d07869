package credential

import (
	"errors"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"github.com/zkcoinjoin/wabisabi/pkg/math/sample"
)

// Attribute is a Pedersen commitment Ma = Value⋅Gg + Randomness⋅Gh, together
// with its opening.
type Attribute struct {
	Value      uint64
	Randomness *curve.Scalar
	Ma         *curve.Point
}

// NewAttribute commits to value with fresh randomness drawn from rand.
func NewAttribute(value uint64, rand io.Reader) *Attribute {
	r := sample.ScalarNonZero(rand)
	return &Attribute{Value: value, Randomness: r, Ma: commit(value, r)}
}

func commit(value uint64, r *curve.Scalar) *curve.Point {
	return curve.MultiScalarMult(
		[]*curve.Scalar{curve.NewScalarUint64(value), r},
		[]*curve.Point{Gg, Gh})
}

// Credential is an attribute together with the issuer's MAC on it.
//
// A credential is presented at most once: presenting it reveals its serial
// number, which the issuer refuses to see twice.
type Credential struct {
	Value      uint64
	Randomness *curve.Scalar
	Mac        *MAC
}

// Ma recomputes the attribute commitment of c.
func (c *Credential) Ma() *curve.Point {
	return commit(c.Value, c.Randomness)
}

// Presentation is a randomized proof of possession of a credential:
//
//	Ca  = z⋅Ga  + Ma
//	Cx0 = z⋅Gx0 + U
//	Cx1 = z⋅Gx1 + T⋅U
//	CV  = z⋅GV  + V
//	S   = r⋅Gs
//
// Two presentations of the same credential only share their serial number S.
type Presentation struct {
	Ca  *curve.Point `json:"ca"`
	Cx0 *curve.Point `json:"cx0"`
	Cx1 *curve.Point `json:"cx1"`
	CV  *curve.Point `json:"cv"`
	S   *curve.Point `json:"s"`
}

// Present randomizes c with z.
func (c *Credential) Present(z *curve.Scalar) *Presentation {
	u := generatorU(c.Mac.T)
	tu := curve.NewIdentityPoint().ScalarMult(c.Mac.T, u)
	randomize := func(g, p *curve.Point) *curve.Point {
		out := curve.NewIdentityPoint().ScalarMult(z, g)
		return out.Add(out, p)
	}
	return &Presentation{
		Ca:  randomize(Ga, c.Ma()),
		Cx0: randomize(Gx0, u),
		Cx1: randomize(Gx1, tu),
		CV:  randomize(GV, c.Mac.V),
		S:   curve.NewIdentityPoint().ScalarMult(c.Randomness, Gs),
	}
}

// ComputeZ returns CV - (W⋅Gw + X0⋅Cx0 + X1⋅Cx1 + Ya⋅Ca), which equals z⋅I
// exactly when the presented MAC is valid under sk.
func (p *Presentation) ComputeZ(sk *SecretKey) *curve.Point {
	sum := curve.MultiScalarMult(
		[]*curve.Scalar{sk.W, sk.X0, sk.X1, sk.Ya},
		[]*curve.Point{Gw, p.Cx0, p.Cx1, p.Ca})
	return sum.Sub(p.CV, sum)
}

// SerialNumber returns the encoding of S, used to detect double spending.
func (p *Presentation) SerialNumber() string {
	data, err := p.S.MarshalBinary()
	if err != nil {
		return ""
	}
	return string(data)
}

func (p *Presentation) points() []*curve.Point {
	return []*curve.Point{p.Ca, p.Cx0, p.Cx1, p.CV, p.S}
}

func validPoints(points ...*curve.Point) error {
	for _, q := range points {
		if q == nil || q.IsIdentity() {
			return errors.New("credential: identity or missing point")
		}
	}
	return nil
}
