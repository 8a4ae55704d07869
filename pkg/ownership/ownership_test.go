package ownership

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
)

var scriptTypes = []coinjoin.ScriptType{coinjoin.P2WPKH, coinjoin.P2TR}

func TestProveVerify(t *testing.T) {
	data := []byte("CoinJoinCoordinatorIdentifier round")
	for _, st := range scriptTypes {
		t.Run(st.String(), func(t *testing.T) {
			k, err := GenerateKey(st)
			require.NoError(t, err)
			scriptType, ok := coinjoin.ClassifyScript(k.PkScript())
			require.True(t, ok)
			assert.Equal(t, st, scriptType)

			proof, err := k.Prove(data)
			require.NoError(t, err)
			assert.NoError(t, ScriptVerifier{}.Verify(k.PkScript(), data, proof))

			// bound to the commitment data
			assert.ErrorIs(t, ScriptVerifier{}.Verify(k.PkScript(), []byte("another round"), proof), ErrInvalidProof)

			// bound to the script
			other, err := GenerateKey(st)
			require.NoError(t, err)
			assert.ErrorIs(t, ScriptVerifier{}.Verify(other.PkScript(), data, proof), ErrInvalidProof)
		})
	}
}

func TestVerifyMalformed(t *testing.T) {
	data := []byte("data")
	wpkh, err := GenerateKey(coinjoin.P2WPKH)
	require.NoError(t, err)
	tr, err := GenerateKey(coinjoin.P2TR)
	require.NoError(t, err)
	wpkhProof, err := wpkh.Prove(data)
	require.NoError(t, err)
	trProof, err := tr.Prove(data)
	require.NoError(t, err)

	v := ScriptVerifier{}
	assert.ErrorIs(t, v.Verify(wpkh.PkScript(), data, nil), ErrInvalidProof)
	assert.ErrorIs(t, v.Verify(wpkh.PkScript(), data, &Proof{}), ErrInvalidProof)
	assert.ErrorIs(t, v.Verify(wpkh.PkScript(), data, trProof), ErrInvalidProof)
	assert.ErrorIs(t, v.Verify(tr.PkScript(), data, wpkhProof), ErrInvalidProof)
	assert.ErrorIs(t, v.Verify([]byte{0x51}, data, wpkhProof), ErrInvalidProof)

	flipped := &Proof{Witness: [][]byte{append([]byte(nil), trProof.Witness[0]...)}}
	flipped.Witness[0][10] ^= 1
	assert.ErrorIs(t, v.Verify(tr.PkScript(), data, flipped), ErrInvalidProof)
}

func TestProofEncoding(t *testing.T) {
	k, err := GenerateKey(coinjoin.P2WPKH)
	require.NoError(t, err)
	proof, err := k.Prove([]byte("data"))
	require.NoError(t, err)

	data, err := json.Marshal(proof)
	require.NoError(t, err)
	var decoded Proof
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, proof.Equal(&decoded))
	assert.NoError(t, ScriptVerifier{}.Verify(k.PkScript(), []byte("data"), &decoded))
}

func TestSignInput(t *testing.T) {
	params := coinjoin.DefaultParameters(&chaincfg.RegressionNetParams, coinjoin.FeeRate(1000))
	state := coinjoin.NewConstructionState(params)

	var keys []*Key
	for i, st := range scriptTypes {
		k, err := GenerateKey(st)
		require.NoError(t, err)
		keys = append(keys, k)
		coin := coinjoin.NewCoin(wire.OutPoint{Hash: chainhash.Hash{byte(i + 1)}}, btcutil.Amount(100_000), k.PkScript())
		state, err = state.AddInput(coin)
		require.NoError(t, err)
	}
	state, err := state.AddOutput(*wire.NewTxOut(190_000, keys[0].PkScript()))
	require.NoError(t, err)
	signing, err := state.Finalize()
	require.NoError(t, err)

	_, err = keys[0].SignInput(signing, 1)
	assert.ErrorIs(t, err, ErrNotOwned)
	_, err = keys[0].SignInput(signing, 2)
	assert.Error(t, err)

	for i, k := range keys {
		witness, err := k.SignInput(signing, i)
		require.NoError(t, err)
		signing, err = signing.AddWitness(i, witness)
		require.NoError(t, err)
	}
	assert.True(t, signing.IsFullySigned())
}
