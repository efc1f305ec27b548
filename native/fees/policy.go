package fees

import (
	"errors"
	"math/big"
)

// MaxPlatformFeeBps caps the platform fee at 10% of sale proceeds. The cap is
// enforced when the policy is configured, never re-checked at settlement.
const MaxPlatformFeeBps uint32 = 1000

const bpsDenominator int64 = 10_000

var (
	ErrFeeBpsOutOfRange = errors.New("fees: platform fee bps out of range")
	ErrZeroRecipient    = errors.New("fees: fee recipient must not be zero")
)

// Policy captures the platform fee configuration applied to every settlement.
type Policy struct {
	FeeBps    uint32
	Recipient [20]byte
}

// Validate rejects policies outside the configuration invariants. Settlement
// trusts validated policies unconditionally.
func (p Policy) Validate() error {
	if p.FeeBps > MaxPlatformFeeBps {
		return ErrFeeBpsOutOfRange
	}
	if p.FeeBps > 0 && p.Recipient == ([20]byte{}) {
		return ErrZeroRecipient
	}
	return nil
}

// Split is the result of dividing sale proceeds into the platform fee and the
// seller's net payout. Fee + Net always equals the gross amount exactly.
type Split struct {
	Fee *big.Int
	Net *big.Int
}

// Apply computes fee = floor(total * bps / 10000) and net = total - fee over
// unsigned fixed-point integers in the smallest payment unit.
func Apply(total *big.Int, bps uint32) Split {
	split := Split{Fee: big.NewInt(0), Net: big.NewInt(0)}
	if total == nil || total.Sign() <= 0 {
		return split
	}
	split.Net = new(big.Int).Set(total)
	if bps == 0 {
		return split
	}
	fee := new(big.Int).Mul(total, big.NewInt(int64(bps)))
	fee.Div(fee, big.NewInt(bpsDenominator))
	if fee.Sign() <= 0 {
		return split
	}
	split.Fee = fee
	split.Net = new(big.Int).Sub(total, fee)
	return split
}
