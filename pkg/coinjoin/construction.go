package coinjoin

import (
	"errors"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
)

// ErrInputNotFound is returned when removing an input that was never added.
var ErrInputNotFound = errors.New("coinjoin: input not found")

// ConstructionState is the transaction while inputs and outputs are registered.
type ConstructionState struct {
	base
}

func (*ConstructionState) isState() {}

// NewConstructionState returns an empty transaction under params.
func NewConstructionState(params Parameters) *ConstructionState {
	return &ConstructionState{base{params: params.clone()}}
}

// AddInput returns a new state with coin appended to the inputs.
//
// The coin is rejected, in order, if its outpoint is already an input, if its
// script type is not allowed, if its amount is out of range, if spending it costs
// at least its amount, or if the transaction would grow beyond its size limit.
func (s *ConstructionState) AddInput(coin Coin) (*ConstructionState, error) {
	if s.indexOf(coin.Outpoint) >= 0 {
		return nil, protocol.Errorf(protocol.NonUniqueInputs, "%v", coin.Outpoint)
	}
	scriptType, ok := coin.ScriptType()
	if !ok || !allows(s.params.AllowedInputTypes, scriptType) {
		return nil, protocol.Errorf(protocol.ScriptNotAllowed, "input %v", coin.Outpoint)
	}
	amount := coin.Amount()
	if amount < s.params.AllowedInputAmounts.Min {
		return nil, protocol.Errorf(protocol.NotEnoughFunds, "input of %v below %v", amount, s.params.AllowedInputAmounts.Min)
	}
	if amount > s.params.AllowedInputAmounts.Max {
		return nil, protocol.Errorf(protocol.TooMuchFunds, "input of %v above %v", amount, s.params.AllowedInputAmounts.Max)
	}
	if fee := s.params.FeeRate.Fee(scriptType.InputVirtualSize()); fee >= amount {
		return nil, protocol.Errorf(protocol.UneconomicalInput, "input of %v costs %v to spend", amount, fee)
	}

	inputs := make([]Coin, len(s.inputs), len(s.inputs)+1)
	copy(inputs, s.inputs)
	inputs = append(inputs, NewCoin(coin.Outpoint, amount, coin.TxOut.PkScript))
	if err := s.checkSize(inputs, s.outputs); err != nil {
		return nil, err
	}
	return &ConstructionState{base{params: s.params, inputs: inputs, outputs: s.outputs}}, nil
}

// RemoveInput returns a new state without the input spending outpoint.
func (s *ConstructionState) RemoveInput(outpoint wire.OutPoint) (*ConstructionState, error) {
	i := s.indexOf(outpoint)
	if i < 0 {
		return nil, ErrInputNotFound
	}
	inputs := make([]Coin, 0, len(s.inputs)-1)
	inputs = append(inputs, s.inputs[:i]...)
	inputs = append(inputs, s.inputs[i+1:]...)
	return &ConstructionState{base{params: s.params, inputs: inputs, outputs: s.outputs}}, nil
}

// AddOutput returns a new state with out appended to the outputs.
//
// Outputs are not deduplicated. An output is rejected, in order, if its script
// is not standard, if its script type is not allowed, if its amount is out of
// range or below the dust threshold, or if the transaction would grow beyond its
// size limit.
func (s *ConstructionState) AddOutput(out wire.TxOut) (*ConstructionState, error) {
	if txscript.GetScriptClass(out.PkScript) == txscript.NonStandardTy {
		return nil, protocol.Errorf(protocol.NonStandardOutput, "script %x", out.PkScript)
	}
	scriptType, ok := ClassifyScript(out.PkScript)
	if !ok || !allows(s.params.AllowedOutputTypes, scriptType) {
		return nil, protocol.Errorf(protocol.ScriptNotAllowed, "output script %x", out.PkScript)
	}
	amount := btcutil.Amount(out.Value)
	if amount < s.params.AllowedOutputAmounts.Min {
		return nil, protocol.Errorf(protocol.NotEnoughFunds, "output of %v below %v", amount, s.params.AllowedOutputAmounts.Min)
	}
	if amount > s.params.AllowedOutputAmounts.Max {
		return nil, protocol.Errorf(protocol.TooMuchFunds, "output of %v above %v", amount, s.params.AllowedOutputAmounts.Max)
	}
	if amount < DustThreshold {
		return nil, protocol.Errorf(protocol.DustOutput, "output of %v", amount)
	}

	outputs := make([]wire.TxOut, len(s.outputs), len(s.outputs)+1)
	copy(outputs, s.outputs)
	outputs = append(outputs, *wire.NewTxOut(out.Value, append([]byte(nil), out.PkScript...)))
	if err := s.checkSize(s.inputs, outputs); err != nil {
		return nil, err
	}
	return &ConstructionState{base{params: s.params, inputs: s.inputs, outputs: outputs}}, nil
}

func (s *ConstructionState) checkSize(inputs []Coin, outputs []wire.TxOut) error {
	if s.params.MaxTransactionSize == 0 {
		return nil
	}
	if vsize := estimateVsize(inputs, outputs); vsize > s.params.MaxTransactionSize {
		return protocol.Errorf(protocol.SizeLimitExceeded, "%d vbytes above %d", vsize, s.params.MaxTransactionSize)
	}
	return nil
}

// Finalize returns the signing state of the transaction, if the balance pays at
// least the round's fee rate for the estimated virtual size.
func (s *ConstructionState) Finalize() (*SigningState, error) {
	required := s.params.FeeRate.Fee(s.EstimatedVsize())
	if balance := s.Balance(); balance < required {
		return nil, protocol.Errorf(protocol.InsufficientFees, "balance %v, required %v", balance, required)
	}
	return &SigningState{base: s.base, witnesses: map[int]wire.TxWitness{}}, nil
}
