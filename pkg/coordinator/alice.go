package coordinator

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"github.com/zkcoinjoin/wabisabi/pkg/messages"
	"github.com/zkcoinjoin/wabisabi/pkg/ownership"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
)

// Alice is a registered input.
type Alice struct {
	ID                  messages.AliceID
	Coin                coinjoin.Coin
	OwnershipProof      *ownership.Proof
	ConfirmedConnection bool
}

// EffectiveValue is the amount credited to a for her input. It deducts the fee
// for the input and for the transaction's shared fields at rate.
func (a *Alice) EffectiveValue(rate coinjoin.FeeRate) btcutil.Amount {
	return round.AmountCredit(a.Coin, rate)
}

// VsizeCredit is the vsize budget credited to a out of allocation.
func (a *Alice) VsizeCredit(allocation int64) int64 {
	return round.VsizeCredit(a.Coin, allocation)
}

func (a *Alice) clone() *Alice {
	c := *a
	return &c
}
