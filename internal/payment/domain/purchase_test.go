package domain_test

import (
	"errors"
	"testing"

	"github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDecodePurchaseMembership(t *testing.T) {
	txn := &domain.Transaction{
		UserID:      7,
		ProductType: domain.ProductTypeMembership,
		Metadata:    datatypes.JSON(`{"membershipId":"1001","affiliateId":42,"affiliateCommission":"50000","customerWhatsapp":"628123"}`),
	}

	purchase, err := domain.DecodePurchase(txn)
	require.NoError(t, err)

	membership, ok := purchase.(domain.MembershipPurchase)
	require.True(t, ok)
	assert.EqualValues(t, 1001, membership.MembershipID)

	attribution := purchase.Attribution()
	assert.EqualValues(t, 42, attribution.AffiliateID)
	require.NotNil(t, attribution.AffiliateCommission)
	assert.EqualValues(t, 50000, *attribution.AffiliateCommission)
	assert.Equal(t, "628123", attribution.CustomerWhatsapp)
}

func TestDecodePurchaseMentorFallback(t *testing.T) {
	txn := &domain.Transaction{
		ProductType: domain.ProductTypeCourse,
		Metadata:    datatypes.JSON(`{"courseId":5,"mentorId":"9","mentorSharePercent":"30.5","commissionType":"percentage","commissionRate":10}`),
	}

	purchase, err := domain.DecodePurchase(txn)
	require.NoError(t, err)

	attribution := purchase.Attribution()
	assert.EqualValues(t, 9, attribution.CreatorID)
	assert.Equal(t, "30.5", attribution.CreatorSharePercent.String())
	assert.Equal(t, domain.CommissionPercentage, attribution.CommissionType)
	assert.Equal(t, "10", attribution.CommissionRate.String())
}

func TestDecodePurchaseSupplierUpgrade(t *testing.T) {
	txn := &domain.Transaction{
		ProductType: domain.ProductTypeSupplierMembership,
		Metadata:    datatypes.JSON(`{"upgradeTo":"3","upgradeFrom":"2"}`),
	}

	purchase, err := domain.DecodePurchase(txn)
	require.NoError(t, err)

	supplier := purchase.(domain.SupplierPurchase)
	assert.EqualValues(t, 3, supplier.PackageID)
	assert.True(t, supplier.IsUpgrade())
}

func TestDecodePurchaseCreditTopUp(t *testing.T) {
	txn := &domain.Transaction{
		UserID:      11,
		ProductType: domain.ProductTypeCreditTopUp,
		Metadata:    datatypes.JSON(`{"affiliateId":"77","credits":100}`),
	}

	purchase, err := domain.DecodePurchase(txn)
	require.NoError(t, err)

	topup := purchase.(domain.CreditTopUpPurchase)
	assert.EqualValues(t, 77, topup.AffiliateID)
	assert.EqualValues(t, 100, topup.Credits)
	assert.Zero(t, topup.Attribution().AffiliateID)
}

func TestDecodePurchaseCreditTopUpByMetadataType(t *testing.T) {
	txn := &domain.Transaction{
		UserID:      11,
		ProductType: domain.ProductTypeProduct,
		Metadata:    datatypes.JSON(`{"type":"CREDIT_TOPUP","credits":"25"}`),
	}

	purchase, err := domain.DecodePurchase(txn)
	require.NoError(t, err)
	topup := purchase.(domain.CreditTopUpPurchase)
	assert.EqualValues(t, 11, topup.AffiliateID)
	assert.EqualValues(t, 25, topup.Credits)
}

func TestDecodePurchaseErrors(t *testing.T) {
	tests := []struct {
		name string
		txn  *domain.Transaction
		want error
	}{
		{"nil", nil, domain.ErrInvalidMetadata},
		{"missing membership id", &domain.Transaction{ProductType: domain.ProductTypeMembership, Metadata: datatypes.JSON(`{}`)}, domain.ErrInvalidMetadata},
		{"bad id", &domain.Transaction{ProductType: domain.ProductTypeCourse, Metadata: datatypes.JSON(`{"courseId":"abc"}`)}, domain.ErrInvalidMetadata},
		{"zero credits", &domain.Transaction{ProductType: domain.ProductTypeCreditTopUp, Metadata: datatypes.JSON(`{"credits":0}`)}, domain.ErrInvalidMetadata},
		{"malformed json", &domain.Transaction{ProductType: domain.ProductTypeProduct, Metadata: datatypes.JSON(`{`)}, domain.ErrInvalidMetadata},
		{"unknown type", &domain.Transaction{ProductType: "GIFT", Metadata: datatypes.JSON(`{}`)}, domain.ErrUnknownProductType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.DecodePurchase(tt.txn)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, domain.StatusPending.Terminal())
	assert.True(t, domain.StatusSuccess.Terminal())
	assert.True(t, domain.StatusFailed.Terminal())
	assert.True(t, domain.StatusExpired.Terminal())
	assert.Equal(t, domain.StatusExpired, domain.EventKindExpired.TargetStatus())
}
