package coinjoin

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
)

type signer struct {
	priv       *btcec.PrivateKey
	pkScript   []byte
	scriptType ScriptType
}

func newSigner(t *testing.T, scriptType ScriptType) signer {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	var pkScript []byte
	switch scriptType {
	case P2WPKH:
		pkScript, err = txscript.NewScriptBuilder().
			AddOp(txscript.OP_0).
			AddData(btcutil.Hash160(priv.PubKey().SerializeCompressed())).
			Script()
	case P2TR:
		pkScript, err = txscript.PayToTaprootScript(txscript.ComputeTaprootKeyNoScript(priv.PubKey()))
	}
	require.NoError(t, err)
	return signer{priv: priv, pkScript: pkScript, scriptType: scriptType}
}

func (s signer) sign(t *testing.T, state *SigningState, index int) wire.TxWitness {
	t.Helper()
	tx := state.CreateUnsignedTransaction()
	prevOuts := make(map[wire.OutPoint]*wire.TxOut)
	for _, c := range state.Inputs() {
		c := c
		prevOuts[c.Outpoint] = &c.TxOut
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	amount := state.Inputs()[index].TxOut.Value

	var (
		witness wire.TxWitness
		err     error
	)
	switch s.scriptType {
	case P2WPKH:
		witness, err = txscript.WitnessSignature(tx, sigHashes, index, amount, s.pkScript, txscript.SigHashAll, s.priv, true)
	case P2TR:
		witness, err = txscript.TaprootWitnessSignature(tx, sigHashes, index, amount, s.pkScript, txscript.SigHashDefault, s.priv)
	}
	require.NoError(t, err)
	return witness
}

func outpoint(n byte) wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash(sha256.Sum256([]byte{n})), Index: uint32(n)}
}

func testParameters() Parameters {
	p := DefaultParameters(&chaincfg.RegressionNetParams, FeeRate(1000))
	p.AllowedInputAmounts = AmountRange{Min: 5_000, Max: 1_000_000}
	p.AllowedOutputAmounts = AmountRange{Min: 1_000, Max: 900_000}
	return p
}

func assertCode(t *testing.T, err error, code protocol.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	actual, ok := protocol.CodeOf(err)
	require.True(t, ok, "expected a protocol error, got %v", err)
	assert.Equal(t, code, actual, "unexpected error %v", err)
}

func TestFeeRate(t *testing.T) {
	assert.Equal(t, btcutil.Amount(68), FeeRate(1000).Fee(68))
	assert.Equal(t, btcutil.Amount(5), FeeRate(1500).Fee(3))
	assert.Equal(t, btcutil.Amount(0), FeeRate(0).Fee(100))
	assert.Equal(t, FeeRate(2000), NewFeeRateSatPerVByte(2))
	assert.Equal(t, FeeRate(1000), FeeRateFromFee(110, 110))
	assert.Equal(t, FeeRate(0), FeeRateFromFee(110, 0))
}

func TestScriptSizes(t *testing.T) {
	assert.Equal(t, int64(272), P2WPKH.InputWeight())
	assert.Equal(t, int64(68), P2WPKH.InputVirtualSize())
	assert.Equal(t, int64(230), P2TR.InputWeight())
	assert.Equal(t, int64(58), P2TR.InputVirtualSize())
	assert.Equal(t, int64(31), P2WPKH.OutputVirtualSize())
	assert.Equal(t, int64(43), P2TR.OutputVirtualSize())

	wpkh := newSigner(t, P2WPKH)
	state, err := NewConstructionState(testParameters()).AddInput(NewCoin(outpoint(1), 100_000, wpkh.pkScript))
	require.NoError(t, err)
	state, err = state.AddOutput(*wire.NewTxOut(90_000, wpkh.pkScript))
	require.NoError(t, err)
	assert.Equal(t, int64(110), state.EstimatedVsize())
}

func TestClassifyScript(t *testing.T) {
	st, ok := ClassifyScript(newSigner(t, P2WPKH).pkScript)
	assert.True(t, ok)
	assert.Equal(t, P2WPKH, st)
	st, ok = ClassifyScript(newSigner(t, P2TR).pkScript)
	assert.True(t, ok)
	assert.Equal(t, P2TR, st)
	_, ok = ClassifyScript([]byte{txscript.OP_TRUE})
	assert.False(t, ok)

	var decoded ScriptType
	require.NoError(t, decoded.UnmarshalText([]byte("P2TR")))
	assert.Equal(t, P2TR, decoded)
	assert.Error(t, decoded.UnmarshalText([]byte("P2SH")))
}

func TestAddInput(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	empty := NewConstructionState(testParameters())

	state, err := empty.AddInput(NewCoin(outpoint(1), 100_000, wpkh.pkScript))
	require.NoError(t, err)
	assert.Len(t, state.Inputs(), 1)
	assert.Empty(t, empty.Inputs(), "the receiver is not modified")

	_, err = state.AddInput(NewCoin(outpoint(1), 100_000, wpkh.pkScript))
	assertCode(t, err, protocol.NonUniqueInputs)
	assert.Len(t, state.Inputs(), 1)

	_, err = state.AddInput(NewCoin(outpoint(2), 100_000, []byte{txscript.OP_TRUE}))
	assertCode(t, err, protocol.ScriptNotAllowed)

	onlyTaproot := testParameters()
	onlyTaproot.AllowedInputTypes = []ScriptType{P2TR}
	_, err = NewConstructionState(onlyTaproot).AddInput(NewCoin(outpoint(2), 100_000, wpkh.pkScript))
	assertCode(t, err, protocol.ScriptNotAllowed)
}

func TestAmountRangeInclusive(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	params := testParameters()
	state := NewConstructionState(params)

	_, err := state.AddInput(NewCoin(outpoint(1), params.AllowedInputAmounts.Min, wpkh.pkScript))
	assert.NoError(t, err)
	_, err = state.AddInput(NewCoin(outpoint(1), params.AllowedInputAmounts.Max, wpkh.pkScript))
	assert.NoError(t, err)
	_, err = state.AddInput(NewCoin(outpoint(1), params.AllowedInputAmounts.Min-1, wpkh.pkScript))
	assertCode(t, err, protocol.NotEnoughFunds)
	_, err = state.AddInput(NewCoin(outpoint(1), params.AllowedInputAmounts.Max+1, wpkh.pkScript))
	assertCode(t, err, protocol.TooMuchFunds)

	_, err = state.AddOutput(*wire.NewTxOut(int64(params.AllowedOutputAmounts.Min), wpkh.pkScript))
	assert.NoError(t, err)
	_, err = state.AddOutput(*wire.NewTxOut(int64(params.AllowedOutputAmounts.Max), wpkh.pkScript))
	assert.NoError(t, err)
	_, err = state.AddOutput(*wire.NewTxOut(int64(params.AllowedOutputAmounts.Min-1), wpkh.pkScript))
	assertCode(t, err, protocol.NotEnoughFunds)
	_, err = state.AddOutput(*wire.NewTxOut(int64(params.AllowedOutputAmounts.Max+1), wpkh.pkScript))
	assertCode(t, err, protocol.TooMuchFunds)
}

func TestUneconomicalInput(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	params := testParameters()
	// 68 vbytes at 100 sat/vB cost 6800 sats.
	params.FeeRate = NewFeeRateSatPerVByte(100)
	state := NewConstructionState(params)

	_, err := state.AddInput(NewCoin(outpoint(1), 6_800, wpkh.pkScript))
	assertCode(t, err, protocol.UneconomicalInput)
	_, err = state.AddInput(NewCoin(outpoint(1), 6_801, wpkh.pkScript))
	assert.NoError(t, err)
}

func TestAddOutput(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	params := testParameters()
	params.AllowedOutputAmounts.Min = 0
	state := NewConstructionState(params)

	_, err := state.AddOutput(*wire.NewTxOut(10_000, []byte{0x01, 0x02}))
	assertCode(t, err, protocol.NonStandardOutput)

	p2pkh, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).
		AddData(make([]byte, 20)).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).
		Script()
	require.NoError(t, err)
	_, err = state.AddOutput(*wire.NewTxOut(10_000, p2pkh))
	assertCode(t, err, protocol.ScriptNotAllowed)

	_, err = state.AddOutput(*wire.NewTxOut(int64(DustThreshold-1), wpkh.pkScript))
	assertCode(t, err, protocol.DustOutput)

	// Outputs to the same script are both kept.
	state, err = state.AddOutput(*wire.NewTxOut(int64(DustThreshold), wpkh.pkScript))
	require.NoError(t, err)
	state, err = state.AddOutput(*wire.NewTxOut(int64(DustThreshold), wpkh.pkScript))
	require.NoError(t, err)
	assert.Len(t, state.Outputs(), 2)
}

func TestSizeLimit(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	state := NewConstructionState(testParameters().WithMaxTransactionSize(200))

	state, err := state.AddInput(NewCoin(outpoint(1), 100_000, wpkh.pkScript))
	require.NoError(t, err)
	state, err = state.AddInput(NewCoin(outpoint(2), 100_000, wpkh.pkScript))
	require.NoError(t, err)
	_, err = state.AddInput(NewCoin(outpoint(3), 100_000, wpkh.pkScript))
	assertCode(t, err, protocol.SizeLimitExceeded)

	// 2 inputs and one output: 42 + 2*272 + 124 = 710 weight, 178 vbytes.
	state, err = state.AddOutput(*wire.NewTxOut(10_000, wpkh.pkScript))
	require.NoError(t, err)
	assert.Equal(t, int64(178), state.EstimatedVsize())
	_, err = state.AddOutput(*wire.NewTxOut(10_000, wpkh.pkScript))
	assertCode(t, err, protocol.SizeLimitExceeded)
}

func TestRemoveInput(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	state := NewConstructionState(testParameters())
	for i := byte(1); i <= 3; i++ {
		var err error
		state, err = state.AddInput(NewCoin(outpoint(i), 100_000, wpkh.pkScript))
		require.NoError(t, err)
	}

	removed, err := state.RemoveInput(outpoint(2))
	require.NoError(t, err)
	inputs := removed.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, outpoint(1), inputs[0].Outpoint)
	assert.Equal(t, outpoint(3), inputs[1].Outpoint)
	assert.Len(t, state.Inputs(), 3)

	_, err = removed.RemoveInput(outpoint(2))
	assert.ErrorIs(t, err, ErrInputNotFound)

	// The removed outpoint can be registered again.
	_, err = removed.AddInput(NewCoin(outpoint(2), 100_000, wpkh.pkScript))
	assert.NoError(t, err)
}

func TestFinalizeFees(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	base, err := NewConstructionState(testParameters()).AddInput(NewCoin(outpoint(1), 100_000, wpkh.pkScript))
	require.NoError(t, err)

	// One P2WPKH input and output is 110 vbytes, so 110 sats at 1 sat/vB.
	exact, err := base.AddOutput(*wire.NewTxOut(100_000-110, wpkh.pkScript))
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(110), exact.Balance())
	signing, err := exact.Finalize()
	require.NoError(t, err)
	assert.Equal(t, FeeRate(1000), signing.EffectiveFeeRate())
	assert.Equal(t, exact.Balance(), signing.Balance())

	short, err := base.AddOutput(*wire.NewTxOut(100_000-109, wpkh.pkScript))
	require.NoError(t, err)
	_, err = short.Finalize()
	assertCode(t, err, protocol.InsufficientFees)
}

func TestBalanceConservation(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	tr := newSigner(t, P2TR)
	state := NewConstructionState(testParameters())
	var in, out btcutil.Amount
	for i, amount := range []btcutil.Amount{50_000, 70_000, 90_000} {
		s := wpkh
		if i%2 == 1 {
			s = tr
		}
		var err error
		state, err = state.AddInput(NewCoin(outpoint(byte(i)), amount, s.pkScript))
		require.NoError(t, err)
		in += amount
	}
	for _, amount := range []btcutil.Amount{40_000, 40_000, 100_000} {
		var err error
		state, err = state.AddOutput(*wire.NewTxOut(int64(amount), tr.pkScript))
		require.NoError(t, err)
		out += amount
	}
	assert.Equal(t, in-out, state.Balance())

	signing, err := state.Finalize()
	require.NoError(t, err)
	assert.Equal(t, in-out, signing.Balance())
	assert.GreaterOrEqual(t, signing.EffectiveFeeRate(), state.Parameters().FeeRate)
}

func TestDeterministicTransaction(t *testing.T) {
	wpkh := newSigner(t, P2WPKH)
	state, err := NewConstructionState(testParameters()).AddInput(NewCoin(outpoint(1), 100_000, wpkh.pkScript))
	require.NoError(t, err)
	state, err = state.AddOutput(*wire.NewTxOut(50_000, wpkh.pkScript))
	require.NoError(t, err)

	serialize := func(tx *wire.MsgTx) []byte {
		var buf bytes.Buffer
		require.NoError(t, tx.Serialize(&buf))
		return buf.Bytes()
	}
	first := state.CreateUnsignedTransaction()
	assert.Equal(t, serialize(first), serialize(state.CreateUnsignedTransaction()))
	assert.Equal(t, int32(2), first.Version)
	assert.Equal(t, uint32(0), first.LockTime)
	assert.Equal(t, uint32(wire.MaxTxInSequenceNum), first.TxIn[0].Sequence)

	signing, err := state.Finalize()
	require.NoError(t, err)
	assert.Equal(t, serialize(first), serialize(signing.CreateUnsignedTransaction()))

	// Mutating a returned transaction does not affect the state.
	first.TxOut[0].Value = 1
	first.TxOut[0].PkScript[0] = 0xff
	assert.Equal(t, serialize(signing.CreateUnsignedTransaction()), serialize(state.CreateUnsignedTransaction()))
	assert.Equal(t, int64(50_000), state.Outputs()[0].Value)
}

func TestWitnessIsolation(t *testing.T) {
	alice := newSigner(t, P2WPKH)
	bob := newSigner(t, P2WPKH)

	state := NewConstructionState(testParameters())
	state, err := state.AddInput(NewCoin(outpoint(1), 100_000, alice.pkScript))
	require.NoError(t, err)
	state, err = state.AddInput(NewCoin(outpoint(2), 100_000, bob.pkScript))
	require.NoError(t, err)
	state, err = state.AddOutput(*wire.NewTxOut(150_000, alice.pkScript))
	require.NoError(t, err)
	signing, err := state.Finalize()
	require.NoError(t, err)

	aliceWitness := alice.sign(t, signing, 0)
	bobWitness := bob.sign(t, signing, 1)

	_, err = signing.AddWitness(1, aliceWitness)
	assertCode(t, err, protocol.WrongCoinjoinSignature)
	_, err = signing.AddWitness(0, bobWitness)
	assertCode(t, err, protocol.WrongCoinjoinSignature)
	_, err = signing.AddWitness(2, aliceWitness)
	assertCode(t, err, protocol.WrongCoinjoinSignature)

	half, err := signing.AddWitness(0, aliceWitness)
	require.NoError(t, err)
	assert.False(t, half.IsFullySigned())
	assert.Equal(t, []int{1}, half.UnsignedInputs())
	assert.False(t, signing.IsInputSigned(0), "the receiver is not modified")
	_, err = half.CreateTransaction()
	assert.ErrorIs(t, err, ErrNotFullySigned)

	_, err = half.AddWitness(0, aliceWitness)
	assertCode(t, err, protocol.WitnessAlreadyProvided)

	full, err := half.AddWitness(1, bobWitness)
	require.NoError(t, err)
	assert.True(t, full.IsFullySigned())

	tx, err := full.CreateTransaction()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tx.Serialize(&buf))
	var decoded wire.MsgTx
	require.NoError(t, decoded.Deserialize(bytes.NewReader(buf.Bytes())))
	assert.Equal(t, aliceWitness, decoded.TxIn[0].Witness)
	assert.Equal(t, bobWitness, decoded.TxIn[1].Witness)
	assert.Equal(t, tx.TxHash(), decoded.TxHash())
}

func TestAddWitnesses(t *testing.T) {
	signers := []signer{newSigner(t, P2WPKH), newSigner(t, P2TR), newSigner(t, P2WPKH)}
	state := NewConstructionState(testParameters())
	var err error
	for i, s := range signers {
		state, err = state.AddInput(NewCoin(outpoint(byte(i+1)), 100_000, s.pkScript))
		require.NoError(t, err)
	}
	state, err = state.AddOutput(*wire.NewTxOut(250_000, signers[0].pkScript))
	require.NoError(t, err)
	signing, err := state.Finalize()
	require.NoError(t, err)

	witnesses := make(map[int]wire.TxWitness)
	for i, s := range signers {
		witnesses[i] = s.sign(t, signing, i)
	}

	bad := map[int]wire.TxWitness{0: witnesses[0], 1: witnesses[2], 2: witnesses[1]}
	_, err = signing.AddWitnesses(bad)
	assertCode(t, err, protocol.WrongCoinjoinSignature)
	assert.Empty(t, signing.witnesses)

	_, err = signing.AddWitnesses(map[int]wire.TxWitness{3: witnesses[0]})
	assertCode(t, err, protocol.WrongCoinjoinSignature)

	first, err := signing.AddWitnesses(map[int]wire.TxWitness{0: witnesses[0]})
	require.NoError(t, err)
	_, err = first.AddWitnesses(map[int]wire.TxWitness{0: witnesses[0], 1: witnesses[1]})
	assertCode(t, err, protocol.WitnessAlreadyProvided)

	full, err := first.AddWitnesses(map[int]wire.TxWitness{1: witnesses[1], 2: witnesses[2]})
	require.NoError(t, err)
	assert.True(t, full.IsFullySigned())
	assert.Equal(t, []int{1, 2}, first.UnsignedInputs())
}

func TestTaprootWitness(t *testing.T) {
	tr := newSigner(t, P2TR)
	wpkh := newSigner(t, P2WPKH)

	state := NewConstructionState(testParameters())
	state, err := state.AddInput(NewCoin(outpoint(1), 100_000, tr.pkScript))
	require.NoError(t, err)
	state, err = state.AddInput(NewCoin(outpoint(2), 100_000, wpkh.pkScript))
	require.NoError(t, err)
	state, err = state.AddOutput(*wire.NewTxOut(190_000, tr.pkScript))
	require.NoError(t, err)
	signing, err := state.Finalize()
	require.NoError(t, err)

	signing, err = signing.AddWitness(0, tr.sign(t, signing, 0))
	require.NoError(t, err)
	signing, err = signing.AddWitness(1, wpkh.sign(t, signing, 1))
	require.NoError(t, err)
	assert.True(t, signing.IsFullySigned())
}

func TestStateSumType(t *testing.T) {
	construction := NewConstructionState(testParameters())
	signing, err := construction.Finalize()
	// An empty transaction pays no fee at all.
	assertCode(t, err, protocol.InsufficientFees)
	assert.Nil(t, signing)

	free, err := NewConstructionState(testParameters().WithFeeRate(0)).Finalize()
	require.NoError(t, err)

	for _, s := range []State{construction, free} {
		switch s.(type) {
		case *ConstructionState:
			assert.Equal(t, construction, s)
		case *SigningState:
			assert.Equal(t, free, s)
		default:
			t.Fatalf("unexpected state %T", s)
		}
	}
}

func TestParametersValidate(t *testing.T) {
	p := testParameters()
	require.NoError(t, p.Validate())

	bad := p
	bad.AllowedInputAmounts = AmountRange{Min: 10, Max: 5}
	assert.Error(t, bad.Validate())

	bad = p.WithFeeRate(-1)
	assert.Error(t, bad.Validate())

	bad = p
	bad.Network = nil
	assert.Error(t, bad.Validate())

	// WithFeeRate copies the allowed types.
	c := p.WithFeeRate(5)
	c.AllowedInputTypes[0] = P2TR
	assert.Equal(t, P2WPKH, p.AllowedInputTypes[0])
}
