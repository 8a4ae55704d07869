package coinjoin

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// State is the transaction of a round, either a *ConstructionState or a *SigningState.
type State interface {
	Parameters() Parameters
	Inputs() []Coin
	Outputs() []wire.TxOut
	// Balance is the sum of the inputs minus the sum of the outputs.
	Balance() btcutil.Amount
	// EstimatedVsize is the virtual size of the fully signed transaction.
	EstimatedVsize() int64
	// EffectiveFeeRate is the fee rate paid by the current Balance.
	EffectiveFeeRate() FeeRate
	// CreateUnsignedTransaction returns the transaction without witnesses.
	CreateUnsignedTransaction() *wire.MsgTx

	isState()
}

var (
	_ State = (*ConstructionState)(nil)
	_ State = (*SigningState)(nil)
)

// base holds the fields shared by both states. Its slices are never written
// after the value is constructed.
type base struct {
	params  Parameters
	inputs  []Coin
	outputs []wire.TxOut
}

func (b *base) Parameters() Parameters { return b.params.clone() }

func (b *base) Inputs() []Coin {
	out := make([]Coin, len(b.inputs))
	for i, c := range b.inputs {
		out[i] = NewCoin(c.Outpoint, c.Amount(), c.TxOut.PkScript)
	}
	return out
}

func (b *base) Outputs() []wire.TxOut {
	out := make([]wire.TxOut, len(b.outputs))
	for i, o := range b.outputs {
		out[i] = *wire.NewTxOut(o.Value, append([]byte(nil), o.PkScript...))
	}
	return out
}

func (b *base) Balance() btcutil.Amount {
	var sum btcutil.Amount
	for _, c := range b.inputs {
		sum += c.Amount()
	}
	for _, o := range b.outputs {
		sum -= btcutil.Amount(o.Value)
	}
	return sum
}

func (b *base) EstimatedVsize() int64 {
	return estimateVsize(b.inputs, b.outputs)
}

func (b *base) EffectiveFeeRate() FeeRate {
	return FeeRateFromFee(b.Balance(), b.EstimatedVsize())
}

// CreateUnsignedTransaction returns a version 2 transaction with inputs and
// outputs in registration order. Identical states give byte-identical transactions.
func (b *base) CreateUnsignedTransaction() *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	for i := range b.inputs {
		op := b.inputs[i].Outpoint
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	for _, o := range b.outputs {
		tx.AddTxOut(wire.NewTxOut(o.Value, append([]byte(nil), o.PkScript...)))
	}
	return tx
}

func (b *base) indexOf(outpoint wire.OutPoint) int {
	for i, c := range b.inputs {
		if c.Outpoint == outpoint {
			return i
		}
	}
	return -1
}

func estimateVsize(inputs []Coin, outputs []wire.TxOut) int64 {
	weight := int64(sharedWeight) + (varIntSize(len(inputs))+varIntSize(len(outputs)))*4
	for _, c := range inputs {
		if t, ok := c.ScriptType(); ok {
			weight += t.InputWeight()
		}
	}
	for _, o := range outputs {
		if t, ok := ClassifyScript(o.PkScript); ok {
			weight += t.OutputVirtualSize() * 4
		} else {
			weight += int64(8+varIntSize(len(o.PkScript))+int64(len(o.PkScript))) * 4
		}
	}
	return weightToVsize(weight)
}
