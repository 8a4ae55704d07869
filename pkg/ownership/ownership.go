// Package ownership proves control of a scriptPubKey without spending it.
//
// A proof is a witness over a tagged digest of the script and of commitment data
// chosen by the verifier, so that a proof made for one round cannot be replayed
// in another.
package ownership

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/zkcoinjoin/wabisabi/internal/types"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
)

var tag = []byte("CJOP/ownership")

// ErrInvalidProof is returned for any proof that does not verify.
var ErrInvalidProof = errors.New("ownership: invalid proof")

// Proof is a witness for the digest of a script and commitment data.
//
// For P2WPKH it holds a DER signature and the compressed public key, for P2TR a
// single BIP-340 signature by the output key.
type Proof struct {
	Witness [][]byte `json:"witness"`
}

// Equal reports whether p and other are structurally equal.
func (p *Proof) Equal(other *Proof) bool {
	return types.StructurallyEqual(p, other)
}

// Digest returns the message signed by a proof for pkScript.
func Digest(pkScript, commitmentData []byte) chainhash.Hash {
	return *chainhash.TaggedHash(tag, pkScript, commitmentData)
}

// Verifier checks ownership proofs.
type Verifier interface {
	Verify(pkScript, commitmentData []byte, proof *Proof) error
}

// ScriptVerifier verifies proofs for the script types of package coinjoin.
type ScriptVerifier struct{}

var _ Verifier = ScriptVerifier{}

// Verify returns nil if proof shows control of pkScript for commitmentData.
func (ScriptVerifier) Verify(pkScript, commitmentData []byte, proof *Proof) error {
	if proof == nil {
		return fmt.Errorf("%w: missing", ErrInvalidProof)
	}
	scriptType, ok := coinjoin.ClassifyScript(pkScript)
	if !ok {
		return fmt.Errorf("%w: unsupported script %x", ErrInvalidProof, pkScript)
	}
	digest := Digest(pkScript, commitmentData)
	switch scriptType {
	case coinjoin.P2WPKH:
		return verifyP2WPKH(pkScript[2:], digest, proof.Witness)
	case coinjoin.P2TR:
		return verifyP2TR(pkScript[2:], digest, proof.Witness)
	}
	return fmt.Errorf("%w: unsupported script type %s", ErrInvalidProof, scriptType)
}

func verifyP2WPKH(pubKeyHash []byte, digest chainhash.Hash, witness [][]byte) error {
	if len(witness) != 2 {
		return fmt.Errorf("%w: expected 2 witness items, got %d", ErrInvalidProof, len(witness))
	}
	pub, err := btcec.ParsePubKey(witness[1])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !bytes.Equal(btcutil.Hash160(pub.SerializeCompressed()), pubKeyHash) {
		return fmt.Errorf("%w: public key does not match script", ErrInvalidProof)
	}
	sig, err := ecdsa.ParseDERSignature(witness[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("%w: bad signature", ErrInvalidProof)
	}
	return nil
}

func verifyP2TR(outputKey []byte, digest chainhash.Hash, witness [][]byte) error {
	if len(witness) != 1 {
		return fmt.Errorf("%w: expected 1 witness item, got %d", ErrInvalidProof, len(witness))
	}
	pub, err := schnorr.ParsePubKey(outputKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	sig, err := schnorr.ParseSignature(witness[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if !sig.Verify(digest[:], pub) {
		return fmt.Errorf("%w: bad signature", ErrInvalidProof)
	}
	return nil
}
