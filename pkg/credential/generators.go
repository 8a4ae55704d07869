package credential

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zkcoinjoin/wabisabi/pkg/math/curve"
	"golang.org/x/crypto/sha3"
)

const generatorCustomization = "WabiSabi generators"

// Fixed generators of the scheme. Their discrete logarithms relative to each
// other are unknown, since each one is obtained by hashing its name to the curve.
var (
	// Gw and Gwp commit to the issuer's W and W'.
	Gw  = GeneratorFromText("Gw")
	Gwp = GeneratorFromText("Gwp")
	// Gx0, Gx1 and Ga are bound to the MAC secrets X0, X1 and Ya.
	Gx0 = GeneratorFromText("Gx0")
	Gx1 = GeneratorFromText("Gx1")
	Ga  = GeneratorFromText("Ga")
	// Gs derives the serial number of a credential from its randomness.
	Gs = GeneratorFromText("Gs")
	// Gg and Gh are the value and randomness generators of attribute commitments.
	Gg = GeneratorFromText("Gg")
	Gh = GeneratorFromText("Gh")
	// GV is the base of the issuer's I parameter.
	GV = GeneratorFromText("GV")
)

// GeneratorFromText hashes text to a point of secp256k1.
func GeneratorFromText(text string) *curve.Point {
	return GeneratorFromBuffer([]byte(text))
}

// GeneratorFromBuffer hashes data to a point of secp256k1 by try-and-increment:
// candidate x coordinates are squeezed from cSHAKE128 over data and a counter,
// until one of them lies on the curve. The even y coordinate is used.
func GeneratorFromBuffer(data []byte) *curve.Point {
	var counter [4]byte
	x := make([]byte, 32)
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h := sha3.NewCShake128(nil, []byte(generatorCustomization))
		_, _ = h.Write(data)
		_, _ = h.Write(counter[:])
		if _, err := io.ReadFull(h, x); err != nil {
			panic(fmt.Sprintf("credential: hash to curve: %v", err))
		}
		if p, err := curve.LiftX(x); err == nil {
			return p
		}
	}
}

// generatorU returns U(t), the MAC generator bound to the nonce t.
func generatorU(t *curve.Scalar) *curve.Point {
	return GeneratorFromBuffer(t.Bytes())
}
