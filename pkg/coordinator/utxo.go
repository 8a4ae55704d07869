package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// ErrUTXONotFound is returned by a UTXOProvider for outputs that are spent or
// never existed.
var ErrUTXONotFound = errors.New("coordinator: unspent output not found")

// UTXOProvider looks up unspent outputs.
type UTXOProvider interface {
	GetTxOut(ctx context.Context, outpoint wire.OutPoint) (*wire.TxOut, error)
}

// UTXOSet is an in-memory UTXOProvider.
type UTXOSet struct {
	mu    sync.RWMutex
	utxos map[wire.OutPoint]wire.TxOut
}

// NewUTXOSet returns an empty set.
func NewUTXOSet() *UTXOSet {
	return &UTXOSet{utxos: make(map[wire.OutPoint]wire.TxOut)}
}

// Add records out as unspent at outpoint.
func (s *UTXOSet) Add(outpoint wire.OutPoint, out *wire.TxOut) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utxos[outpoint] = *wire.NewTxOut(out.Value, append([]byte(nil), out.PkScript...))
}

// Spend removes the output at outpoint.
func (s *UTXOSet) Spend(outpoint wire.OutPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.utxos, outpoint)
}

// ApplyTransaction spends the inputs of tx and adds its outputs.
func (s *UTXOSet) ApplyTransaction(tx *wire.MsgTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range tx.TxIn {
		delete(s.utxos, in.PreviousOutPoint)
	}
	hash := tx.TxHash()
	for i, out := range tx.TxOut {
		s.utxos[*wire.NewOutPoint(&hash, uint32(i))] = *wire.NewTxOut(out.Value, append([]byte(nil), out.PkScript...))
	}
}

// GetTxOut implements UTXOProvider.
func (s *UTXOSet) GetTxOut(ctx context.Context, outpoint wire.OutPoint) (*wire.TxOut, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.utxos[outpoint]
	if !ok {
		return nil, ErrUTXONotFound
	}
	return wire.NewTxOut(out.Value, append([]byte(nil), out.PkScript...)), nil
}
