package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eksporyuk/internal/config"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/smallbiznis/eksporyuk/internal/revenue/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amounts(shares []domain.Share) map[domain.ShareType]int64 {
	out := make(map[domain.ShareType]int64, len(shares))
	for _, share := range shares {
		out[share.Type] = share.Amount
	}
	return out
}

func TestSplitExplicitCommissionWins(t *testing.T) {
	commission := int64(50000)
	shares, err := domain.Split(500000, paymentdomain.Attribution{
		AffiliateID:         42,
		AffiliateCommission: &commission,
		CommissionType:      paymentdomain.CommissionPercentage,
		CommissionRate:      decimal.NewFromInt(30),
	}, config.DefaultRevenueConfig())
	require.NoError(t, err)

	// Platform owners without user ids are skipped.
	require.Len(t, shares, 1)
	assert.Equal(t, domain.ShareAffiliate, shares[0].Type)
	assert.EqualValues(t, 50000, shares[0].Amount)
	assert.False(t, shares[0].Percent.Valid)
}

func TestSplitPercentageCreatorAndPlatform(t *testing.T) {
	platform := config.RevenueConfig{
		Company: config.PlatformShare{Name: "company", UserID: "900", Percent: 15},
		Partners: []config.PlatformShare{
			{Name: "founder", UserID: "901", Percent: 60},
			{Name: "co founder", UserID: "902", Percent: 40},
		},
	}
	shares, err := domain.Split(1000000, paymentdomain.Attribution{
		AffiliateID:         42,
		CommissionType:      paymentdomain.CommissionPercentage,
		CommissionRate:      decimal.RequireFromString("12.5"),
		CreatorID:           7,
		CreatorSharePercent: decimal.NewFromInt(50),
	}, platform)
	require.NoError(t, err)

	got := amounts(shares)
	assert.EqualValues(t, 125000, got[domain.ShareAffiliate])
	assert.EqualValues(t, 437500, got[domain.ShareCreator])
	assert.EqualValues(t, 65625, got[domain.ShareCompany])
	assert.EqualValues(t, 223125, got["FOUNDER"])
	assert.EqualValues(t, 148750, got["CO_FOUNDER"])

	var total int64
	for _, share := range shares {
		total += share.Amount
	}
	assert.EqualValues(t, 1000000, total)
}

func TestSplitFlatCommissionIsCappedAtAmount(t *testing.T) {
	shares, err := domain.Split(10000, paymentdomain.Attribution{
		AffiliateID:    42,
		CommissionType: paymentdomain.CommissionFlat,
		CommissionRate: decimal.NewFromInt(25000),
	}, config.RevenueConfig{})
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.EqualValues(t, 10000, shares[0].Amount)
}

func TestSplitNothingToDistribute(t *testing.T) {
	shares, err := domain.Split(500000, paymentdomain.Attribution{}, config.RevenueConfig{})
	require.NoError(t, err)
	assert.Empty(t, shares)

	_, err = domain.Split(0, paymentdomain.Attribution{}, config.RevenueConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestSplitRejectsMalformedOwner(t *testing.T) {
	_, err := domain.Split(500000, paymentdomain.Attribution{}, config.RevenueConfig{
		Company: config.PlatformShare{Name: "company", UserID: "not-a-number", Percent: 15},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPlatformOwner)
}

func TestPartnerShareType(t *testing.T) {
	assert.Equal(t, domain.ShareType("CO_FOUNDER"), domain.PartnerShareType("co-founder"))
	assert.Equal(t, domain.ShareType("PARTNER"), domain.PartnerShareType(" "))
}
