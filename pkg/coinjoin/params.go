// Package coinjoin implements the shared transaction of a CoinJoin round as an
// immutable state machine.
//
// A ConstructionState accumulates the inputs and outputs registered by many
// independent participants, checking each against the round's Parameters.
// Finalize turns it into a SigningState, which accepts exactly one valid witness
// per input. Every operation returns a new state and leaves its receiver untouched.
package coinjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// DustThreshold is the smallest output value accepted, in satoshis.
const DustThreshold btcutil.Amount = 546

// AmountRange is an inclusive range of amounts.
type AmountRange struct {
	Min btcutil.Amount `yaml:"min" json:"min"`
	Max btcutil.Amount `yaml:"max" json:"max"`
}

// Contains returns true if Min <= a <= Max.
func (r AmountRange) Contains(a btcutil.Amount) bool {
	return r.Min <= a && a <= r.Max
}

// Parameters are the policies a round's transaction must satisfy. They do not
// change during the round.
type Parameters struct {
	FeeRate              FeeRate
	AllowedInputAmounts  AmountRange
	AllowedOutputAmounts AmountRange
	AllowedInputTypes    []ScriptType
	AllowedOutputTypes   []ScriptType
	Network              *chaincfg.Params
	// MaxTransactionSize bounds the estimated virtual size. 0 means no limit.
	MaxTransactionSize int64
}

// DefaultParameters returns parameters accepting P2WPKH and P2TR scripts, with
// amounts between the dust threshold and the maximum money supply.
func DefaultParameters(network *chaincfg.Params, feeRate FeeRate) Parameters {
	all := AmountRange{Min: DustThreshold, Max: btcutil.MaxSatoshi}
	return Parameters{
		FeeRate:              feeRate,
		AllowedInputAmounts:  all,
		AllowedOutputAmounts: all,
		AllowedInputTypes:    []ScriptType{P2WPKH, P2TR},
		AllowedOutputTypes:   []ScriptType{P2WPKH, P2TR},
		Network:              network,
	}
}

// Validate returns an error if the parameters cannot describe a valid round.
func (p Parameters) Validate() error {
	if p.FeeRate < 0 {
		return fmt.Errorf("coinjoin: negative fee rate %d", p.FeeRate)
	}
	for name, r := range map[string]AmountRange{
		"input":  p.AllowedInputAmounts,
		"output": p.AllowedOutputAmounts,
	} {
		if r.Min < 0 || r.Min > r.Max {
			return fmt.Errorf("coinjoin: invalid %s amount range [%d, %d]", name, r.Min, r.Max)
		}
	}
	if len(p.AllowedInputTypes) == 0 || len(p.AllowedOutputTypes) == 0 {
		return fmt.Errorf("coinjoin: no allowed script types")
	}
	if p.Network == nil {
		return fmt.Errorf("coinjoin: no network")
	}
	if p.MaxTransactionSize < 0 {
		return fmt.Errorf("coinjoin: negative max transaction size")
	}
	return nil
}

// WithFeeRate returns a copy of p with the given fee rate.
func (p Parameters) WithFeeRate(rate FeeRate) Parameters {
	c := p.clone()
	c.FeeRate = rate
	return c
}

// WithMaxTransactionSize returns a copy of p with the given size limit.
func (p Parameters) WithMaxTransactionSize(vsize int64) Parameters {
	c := p.clone()
	c.MaxTransactionSize = vsize
	return c
}

func (p Parameters) clone() Parameters {
	c := p
	c.AllowedInputTypes = append([]ScriptType(nil), p.AllowedInputTypes...)
	c.AllowedOutputTypes = append([]ScriptType(nil), p.AllowedOutputTypes...)
	return c
}

func allows(types []ScriptType, t ScriptType) bool {
	for _, allowed := range types {
		if allowed == t {
			return true
		}
	}
	return false
}
