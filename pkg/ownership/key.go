package ownership

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
)

// Key controls a single P2WPKH or P2TR script. It makes ownership proofs and
// signs the inputs of a round's transaction that spend its script.
type Key struct {
	priv       *btcec.PrivateKey
	scriptType coinjoin.ScriptType
	pkScript   []byte
}

// NewKey returns the key of the scriptType script of priv.
func NewKey(priv *btcec.PrivateKey, scriptType coinjoin.ScriptType) (*Key, error) {
	var (
		pkScript []byte
		err      error
	)
	switch scriptType {
	case coinjoin.P2WPKH:
		pkScript, err = txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(priv.PubKey().SerializeCompressed())).
			Script()
	case coinjoin.P2TR:
		pkScript, err = txscript.PayToTaprootScript(txscript.ComputeTaprootKeyNoScript(priv.PubKey()))
	default:
		return nil, fmt.Errorf("ownership: unsupported script type %s", scriptType)
	}
	if err != nil {
		return nil, err
	}
	return &Key{priv: priv, scriptType: scriptType, pkScript: pkScript}, nil
}

// GenerateKey samples a new private key.
func GenerateKey(scriptType coinjoin.ScriptType) (*Key, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return NewKey(priv, scriptType)
}

// PkScript returns the script controlled by k.
func (k *Key) PkScript() []byte {
	return append([]byte(nil), k.pkScript...)
}

// ScriptType returns the type of k's script.
func (k *Key) ScriptType() coinjoin.ScriptType {
	return k.scriptType
}

// Prove returns a proof of ownership of k's script, bound to commitmentData.
func (k *Key) Prove(commitmentData []byte) (*Proof, error) {
	digest := Digest(k.pkScript, commitmentData)
	switch k.scriptType {
	case coinjoin.P2WPKH:
		sig := ecdsa.Sign(k.priv, digest[:])
		return &Proof{Witness: [][]byte{sig.Serialize(), k.priv.PubKey().SerializeCompressed()}}, nil
	case coinjoin.P2TR:
		sig, err := schnorr.Sign(txscript.TweakTaprootPrivKey(*k.priv, nil), digest[:])
		if err != nil {
			return nil, err
		}
		return &Proof{Witness: [][]byte{sig.Serialize()}}, nil
	}
	return nil, fmt.Errorf("ownership: unsupported script type %s", k.scriptType)
}

// ErrNotOwned is returned when signing an input that does not spend k's script.
var ErrNotOwned = errors.New("ownership: input does not spend this key's script")

// SignInput returns the witness of the input at index in the transaction of state.
func (k *Key) SignInput(state *coinjoin.SigningState, index int) (wire.TxWitness, error) {
	inputs := state.Inputs()
	if index < 0 || index >= len(inputs) {
		return nil, fmt.Errorf("ownership: input %d out of range", index)
	}
	if string(inputs[index].TxOut.PkScript) != string(k.pkScript) {
		return nil, ErrNotOwned
	}

	tx := state.CreateUnsignedTransaction()
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(inputs))
	for i := range inputs {
		prevOuts[inputs[i].Outpoint] = &inputs[i].TxOut
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	amount := inputs[index].TxOut.Value

	switch k.scriptType {
	case coinjoin.P2WPKH:
		return txscript.WitnessSignature(tx, sigHashes, index, amount, k.pkScript, txscript.SigHashAll, k.priv, true)
	case coinjoin.P2TR:
		return txscript.TaprootWitnessSignature(tx, sigHashes, index, amount, k.pkScript, txscript.SigHashDefault, k.priv)
	}
	return nil, fmt.Errorf("ownership: unsupported script type %s", k.scriptType)
}
