package coinjoin

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/zkcoinjoin/wabisabi/pkg/protocol"
	"golang.org/x/sync/errgroup"
)

// ErrNotFullySigned is returned when building a transaction which still misses witnesses.
var ErrNotFullySigned = errors.New("coinjoin: transaction is not fully signed")

// SigningState is a finalized transaction collecting the witnesses of its inputs.
type SigningState struct {
	base
	witnesses map[int]wire.TxWitness
}

func (*SigningState) isState() {}

// AddWitness returns a new state where the input at index is signed by witness.
//
// The witness is rejected if the input already has one, or if it does not
// satisfy the input's script for the unsigned transaction.
func (s *SigningState) AddWitness(index int, witness wire.TxWitness) (*SigningState, error) {
	if index < 0 || index >= len(s.inputs) {
		return nil, protocol.Errorf(protocol.WrongCoinjoinSignature, "no input at index %d", index)
	}
	if _, ok := s.witnesses[index]; ok {
		return nil, protocol.Errorf(protocol.WitnessAlreadyProvided, "input %d", index)
	}
	if err := s.verifyWitness(index, witness); err != nil {
		return nil, &protocol.Error{Code: protocol.WrongCoinjoinSignature, Err: err}
	}

	witnesses := make(map[int]wire.TxWitness, len(s.witnesses)+1)
	for i, w := range s.witnesses {
		witnesses[i] = w
	}
	witnesses[index] = cloneWitness(witness)
	return &SigningState{base: s.base, witnesses: witnesses}, nil
}

// AddWitnesses returns a new state where each input in witnesses is signed by
// its witness. Either all witnesses are added, or none.
//
// Witnesses are verified concurrently. When several are invalid, the error of
// the lowest input index is returned.
func (s *SigningState) AddWitnesses(witnesses map[int]wire.TxWitness) (*SigningState, error) {
	indices := make([]int, 0, len(witnesses))
	for i := range witnesses {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		if i < 0 || i >= len(s.inputs) {
			return nil, protocol.Errorf(protocol.WrongCoinjoinSignature, "no input at index %d", i)
		}
		if _, ok := s.witnesses[i]; ok {
			return nil, protocol.Errorf(protocol.WitnessAlreadyProvided, "input %d", i)
		}
	}

	errs := make([]error, len(indices))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for j, i := range indices {
		j, i := j, i
		g.Go(func() error {
			errs[j] = s.verifyWitness(i, witnesses[i])
			return nil
		})
	}
	_ = g.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, &protocol.Error{Code: protocol.WrongCoinjoinSignature, Err: err}
		}
	}

	next := make(map[int]wire.TxWitness, len(s.witnesses)+len(indices))
	for i, w := range s.witnesses {
		next[i] = w
	}
	for _, i := range indices {
		next[i] = cloneWitness(witnesses[i])
	}
	return &SigningState{base: s.base, witnesses: next}, nil
}

func (s *SigningState) verifyWitness(index int, witness wire.TxWitness) error {
	tx := s.CreateUnsignedTransaction()
	tx.TxIn[index].Witness = witness

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(s.inputs))
	for i := range s.inputs {
		c := s.inputs[i]
		prevOuts[c.Outpoint] = wire.NewTxOut(c.TxOut.Value, c.TxOut.PkScript)
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	prev := s.inputs[index].TxOut

	vm, err := txscript.NewEngine(prev.PkScript, tx, index, txscript.StandardVerifyFlags,
		nil, txscript.NewTxSigHashes(tx, fetcher), prev.Value, fetcher)
	if err != nil {
		return fmt.Errorf("coinjoin: input %d: %w", index, err)
	}
	if err := vm.Execute(); err != nil {
		return fmt.Errorf("coinjoin: input %d: %w", index, err)
	}
	return nil
}

// IsInputSigned returns true if the input at index has a witness.
func (s *SigningState) IsInputSigned(index int) bool {
	_, ok := s.witnesses[index]
	return ok
}

// IsFullySigned returns true if every input has a witness.
func (s *SigningState) IsFullySigned() bool {
	return len(s.witnesses) == len(s.inputs)
}

// UnsignedInputs returns the indices of the inputs still missing a witness.
func (s *SigningState) UnsignedInputs() []int {
	var out []int
	for i := range s.inputs {
		if !s.IsInputSigned(i) {
			out = append(out, i)
		}
	}
	return out
}

// CreateTransaction returns the fully signed transaction.
func (s *SigningState) CreateTransaction() (*wire.MsgTx, error) {
	if !s.IsFullySigned() {
		return nil, ErrNotFullySigned
	}
	tx := s.CreateUnsignedTransaction()
	for i, w := range s.witnesses {
		tx.TxIn[i].Witness = cloneWitness(w)
	}
	return tx, nil
}

func cloneWitness(w wire.TxWitness) wire.TxWitness {
	out := make(wire.TxWitness, len(w))
	for i, item := range w {
		out[i] = append([]byte(nil), item...)
	}
	return out
}
