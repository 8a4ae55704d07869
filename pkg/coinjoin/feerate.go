package coinjoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// FeeRate is a fee rate in satoshis per 1000 virtual bytes.
type FeeRate btcutil.Amount

// NewFeeRateSatPerVByte returns the fee rate of satPerVByte satoshis per virtual byte.
func NewFeeRateSatPerVByte(satPerVByte float64) FeeRate {
	return FeeRate(btcutil.Amount(satPerVByte * 1000))
}

// FeeRateFromFee returns the fee rate of paying fee for vsize virtual bytes.
func FeeRateFromFee(fee btcutil.Amount, vsize int64) FeeRate {
	if vsize <= 0 {
		return 0
	}
	return FeeRate(int64(fee) * 1000 / vsize)
}

// Fee returns the fee for vsize virtual bytes, rounded up to the next satoshi.
func (r FeeRate) Fee(vsize int64) btcutil.Amount {
	return btcutil.Amount((int64(r)*vsize + 999) / 1000)
}

// SatPerVByte returns r in satoshis per virtual byte.
func (r FeeRate) SatPerVByte() float64 {
	return float64(r) / 1000
}

// String implements fmt.Stringer.
func (r FeeRate) String() string {
	return fmt.Sprintf("%.3f sat/vB", r.SatPerVByte())
}
