package coinjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// ScriptType is a kind of output script a round may accept.
type ScriptType int

const (
	P2WPKH ScriptType = iota + 1
	P2TR
)

const (
	// Weight of the fields shared by every transaction: version, locktime and
	// the segwit marker and flag. The input and output counts are added separately.
	sharedWeight = (4+4)*4 + 2

	// outpoint, empty scriptSig length and sequence.
	inputNonWitnessBytes = 32 + 4 + 1 + 4
)

// String implements fmt.Stringer.
func (t ScriptType) String() string {
	switch t {
	case P2WPKH:
		return "P2WPKH"
	case P2TR:
		return "P2TR"
	default:
		return fmt.Sprintf("ScriptType(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t ScriptType) MarshalText() ([]byte, error) {
	switch t {
	case P2WPKH, P2TR:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("coinjoin: unknown script type %d", int(t))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ScriptType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "P2WPKH":
		*t = P2WPKH
	case "P2TR":
		*t = P2TR
	default:
		return fmt.Errorf("coinjoin: unknown script type %q", text)
	}
	return nil
}

// ClassifyScript returns the ScriptType of pkScript, if it is one.
func ClassifyScript(pkScript []byte) (ScriptType, bool) {
	switch txscript.GetScriptClass(pkScript) {
	case txscript.WitnessV0PubKeyHashTy:
		return P2WPKH, true
	case txscript.WitnessV1TaprootTy:
		return P2TR, true
	default:
		return 0, false
	}
}

// InputWeight returns the weight units an input of type t adds to a transaction,
// including its witness.
func (t ScriptType) InputWeight() int64 {
	switch t {
	case P2WPKH:
		// stack items count, then a 72 byte signature and a 33 byte public key.
		return inputNonWitnessBytes*4 + 1 + 1 + 72 + 1 + 33
	case P2TR:
		// stack items count, then a 64 byte schnorr signature.
		return inputNonWitnessBytes*4 + 1 + 1 + 64
	default:
		panic(fmt.Sprintf("coinjoin: unknown script type %d", int(t)))
	}
}

// InputVirtualSize returns the virtual size of an input of type t.
func (t ScriptType) InputVirtualSize() int64 {
	return weightToVsize(t.InputWeight())
}

// OutputVirtualSize returns the virtual size of an output paying to a script of type t.
func (t ScriptType) OutputVirtualSize() int64 {
	switch t {
	case P2WPKH:
		// value, script length and a 22 byte script.
		return 8 + 1 + 22
	case P2TR:
		// value, script length and a 34 byte script.
		return 8 + 1 + 34
	default:
		panic(fmt.Sprintf("coinjoin: unknown script type %d", int(t)))
	}
}

func weightToVsize(weight int64) int64 {
	return (weight + 3) / 4
}

// varIntSize returns the serialized size of n as a Bitcoin compact size integer.
func varIntSize(n int) int64 {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// SharedVirtualSize bounds the virtual size of the transaction fields that do
// not belong to any input or output, for up to 0xffff inputs and outputs.
func SharedVirtualSize() int64 {
	return weightToVsize(sharedWeight + (varIntSize(0xffff)+varIntSize(0xffff))*4)
}
