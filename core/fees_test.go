package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSale_Unsigned(t *testing.T) {
	split, err := SplitSale(1000, false, DefaultTreasury("op"))
	require.NoError(t, err)
	assert.Equal(t, Split{Seller: 997, Platform: 3}, split)
}

func TestSplitSale_Signed(t *testing.T) {
	split, err := SplitSale(1000, true, DefaultTreasury("op"))
	require.NoError(t, err)
	assert.Equal(t, Split{Seller: 697, Platform: 303}, split)
}

func TestSplitSale_FloorsPlatformCut(t *testing.T) {
	tr := DefaultTreasury("op")
	for _, price := range []uint64{0, 1, 333, 999, 1001, 123_456_789} {
		for _, signed := range []bool{false, true} {
			split, err := SplitSale(price, signed, tr)
			require.NoError(t, err)
			assert.Equal(t, price, split.Seller+split.Platform, "price %d signed %v", price, signed)
		}
	}

	split, err := SplitSale(333, false, tr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), split.Platform, "333*30/10000 floors to 0")
}

func TestSplitSale_NoOverflowAtMaxPrice(t *testing.T) {
	split, err := SplitSale(math.MaxUint64, true, DefaultTreasury("op"))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), split.Seller+split.Platform)
	assert.Greater(t, split.Platform, uint64(0))
}

func TestMulBps_RejectsRateAboveDenominator(t *testing.T) {
	_, err := MulBps(1, BpsDenominator+1)
	assert.True(t, errors.Is(err, ErrInvalidRate))
}

func TestValidateRates(t *testing.T) {
	assert.NoError(t, ValidateRates(30, 3000))
	assert.NoError(t, ValidateRates(0, BpsDenominator))
	assert.ErrorIs(t, ValidateRates(5000, 5001), ErrInvalidRate)
	assert.ErrorIs(t, ValidateRates(BpsDenominator+1, 0), ErrInvalidRate)
}

func TestSigningAgreementExpired(t *testing.T) {
	a := &SigningAgreement{Expiration: 100}
	assert.False(t, a.Expired(99))
	assert.True(t, a.Expired(100))
	assert.True(t, a.Expired(101))
}
