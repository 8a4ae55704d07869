package round

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
)

// AmountCredit is the amount credential value a coin is converted to at rate. It
// deducts the fee for spending the coin and for the transaction's shared fields.
func AmountCredit(coin coinjoin.Coin, rate coinjoin.FeeRate) btcutil.Amount {
	return coin.EffectiveValue(rate) - rate.Fee(coinjoin.SharedVirtualSize())
}

// VsizeCredit is the vsize credential value a coin is converted to, out of
// the allocation of a single input.
func VsizeCredit(coin coinjoin.Coin, allocation int64) int64 {
	t, ok := coin.ScriptType()
	if !ok {
		return 0
	}
	return allocation - t.InputVirtualSize()
}

// OutputCost returns the amount and vsize credentials spent on an output of
// value paying to pkScript.
func OutputCost(value btcutil.Amount, pkScript []byte, rate coinjoin.FeeRate) (btcutil.Amount, int64, bool) {
	t, ok := coinjoin.ClassifyScript(pkScript)
	if !ok {
		return 0, 0, false
	}
	vsize := t.OutputVirtualSize()
	return value + rate.Fee(vsize), vsize, true
}

// AmountCredit is the amount credential value of coin in this round.
func (s *State) AmountCredit(coin coinjoin.Coin) btcutil.Amount {
	return AmountCredit(coin, s.Parameters.FeeRate)
}

// VsizeCredit is the vsize credential value of coin in this round.
func (s *State) VsizeCredit(coin coinjoin.Coin) int64 {
	return VsizeCredit(coin, s.MaxVsizeAllocationPerAlice)
}
