package core

import (
	"fmt"
	"math/bits"
	"time"
)

// BpsDenominator is the basis-point scale of every rate in Treasury.
const BpsDenominator = 10_000

// MinSigningTerm is the shortest term the platform may offer in an invitation.
const MinSigningTerm = 30 * 24 * time.Hour

// Split is the outcome of a settlement. Seller + Platform always equals the
// sale price.
type Split struct {
	Seller   uint64 `json:"seller"`
	Platform uint64 `json:"platform"`
}

// SplitSale divides price between seller and platform. Signed sellers pay the
// revenue share on top of the commission. Division floors, so rounding dust
// always stays with the seller.
func SplitSale(price uint64, signed bool, t *Treasury) (Split, error) {
	rate := t.CommissionRateBps
	if signed {
		rate += t.RevenueShareBps
	}
	platform, err := MulBps(price, rate)
	if err != nil {
		return Split{}, err
	}
	return Split{Seller: price - platform, Platform: platform}, nil
}

// MulBps returns floor(amount * bps / 10000) without intermediate overflow.
func MulBps(amount, bps uint64) (uint64, error) {
	if bps > BpsDenominator {
		return 0, fmt.Errorf("%w: %d bps exceeds %d", ErrInvalidRate, bps, BpsDenominator)
	}
	hi, lo := bits.Mul64(amount, bps)
	q, _ := bits.Div64(hi, lo, BpsDenominator)
	return q, nil
}

// ValidateRates checks that a signed sale can never cost more than its price.
func ValidateRates(commissionBps, revenueShareBps uint64) error {
	if commissionBps > BpsDenominator || revenueShareBps > BpsDenominator-commissionBps {
		return fmt.Errorf("%w: commission %d + revenue share %d exceeds %d bps",
			ErrInvalidRate, commissionBps, revenueShareBps, BpsDenominator)
	}
	return nil
}
