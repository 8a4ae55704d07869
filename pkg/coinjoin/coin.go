package coinjoin

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Coin is an unspent output registered as an input of the transaction.
type Coin struct {
	Outpoint wire.OutPoint
	TxOut    wire.TxOut
}

// NewCoin returns the coin spending outpoint, which pays amount to pkScript.
func NewCoin(outpoint wire.OutPoint, amount btcutil.Amount, pkScript []byte) Coin {
	return Coin{
		Outpoint: outpoint,
		TxOut:    *wire.NewTxOut(int64(amount), append([]byte(nil), pkScript...)),
	}
}

// Amount returns the value of the coin.
func (c Coin) Amount() btcutil.Amount {
	return btcutil.Amount(c.TxOut.Value)
}

// ScriptType classifies the coin's script.
func (c Coin) ScriptType() (ScriptType, bool) {
	return ClassifyScript(c.TxOut.PkScript)
}

// EffectiveValue returns the amount minus the fee to spend the coin at rate.
func (c Coin) EffectiveValue(rate FeeRate) btcutil.Amount {
	t, ok := c.ScriptType()
	if !ok {
		return c.Amount()
	}
	return c.Amount() - rate.Fee(t.InputVirtualSize())
}
