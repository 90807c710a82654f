package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eksporyuk/internal/config"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidPlatformOwner = errors.New("invalid_platform_owner")
	ErrInvalidDistribution  = errors.New("invalid_distribution")
)

type ShareType string

const (
	ShareAffiliate ShareType = "AFFILIATE"
	ShareCreator   ShareType = "CREATOR"
	ShareCompany   ShareType = "COMPANY"
)

const StatusPending = "PENDING"

var hundred = decimal.NewFromInt(100)

// Share is one wallet's cut of a transaction.
type Share struct {
	Type    ShareType
	UserID  snowflake.ID
	Amount  int64
	Percent decimal.NullDecimal
}

// Distribution is the result of distributing one transaction. Inserted
// lists the shares written by this call; repeats leave it empty.
type Distribution struct {
	TransactionID snowflake.ID
	Shares        []Share
	Inserted      []Share
}

type Wallet struct {
	ID             snowflake.ID `json:"id"`
	UserID         snowflake.ID `json:"user_id"`
	Balance        int64        `json:"balance"`
	BalancePending int64        `json:"balance_pending"`
	TotalEarnings  int64        `json:"total_earnings"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type PendingRevenue struct {
	ID            snowflake.ID        `json:"id"`
	WalletID      snowflake.ID        `json:"wallet_id"`
	UserID        snowflake.ID        `json:"user_id"`
	TransactionID snowflake.ID        `json:"transaction_id"`
	Type          ShareType           `json:"type"`
	Amount        int64               `json:"amount"`
	Percent       decimal.NullDecimal `json:"percent"`
	Status        string              `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

type Repository interface {
	// EnsureWallet creates the wallet when missing and returns the stored row.
	EnsureWallet(ctx context.Context, tx *gorm.DB, id, userID snowflake.ID, now time.Time) (*Wallet, error)
	FindWalletByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	InsertPendingRevenue(ctx context.Context, tx *gorm.DB, item PendingRevenue) (bool, error)
	AddPendingBalance(ctx context.Context, tx *gorm.DB, walletID snowflake.ID, amount int64, now time.Time) error
	ListByTransaction(ctx context.Context, db *gorm.DB, transactionID snowflake.ID) ([]PendingRevenue, error)
}

// Split divides amount between affiliate, creator and platform owners, in
// that order, each taking from what the previous step left. Rates come
// from the attribution frozen at checkout. Zero-amount shares are dropped.
func Split(amount int64, attribution paymentdomain.Attribution, platform config.RevenueConfig) ([]Share, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	total := decimal.NewFromInt(amount)
	remaining := total
	shares := make([]Share, 0, 2+len(platform.Partners))

	if attribution.AffiliateID != 0 {
		commission, percent := affiliateCommission(total, attribution)
		if commission.GreaterThan(remaining) {
			commission = remaining
		}
		if commission.IsPositive() {
			shares = append(shares, Share{Type: ShareAffiliate, UserID: attribution.AffiliateID, Amount: commission.IntPart(), Percent: percent})
			remaining = remaining.Sub(commission)
		}
	}

	if attribution.CreatorID != 0 && attribution.CreatorSharePercent.IsPositive() {
		creator := percentOf(remaining, attribution.CreatorSharePercent)
		if creator.IsPositive() {
			shares = append(shares, Share{
				Type:    ShareCreator,
				UserID:  attribution.CreatorID,
				Amount:  creator.IntPart(),
				Percent: decimal.NewNullDecimal(attribution.CreatorSharePercent),
			})
			remaining = remaining.Sub(creator)
		}
	}

	platformShares, err := splitPlatform(remaining, platform)
	if err != nil {
		return nil, err
	}
	return append(shares, platformShares...), nil
}

func affiliateCommission(total decimal.Decimal, attribution paymentdomain.Attribution) (decimal.Decimal, decimal.NullDecimal) {
	if attribution.AffiliateCommission != nil {
		return decimal.NewFromInt(*attribution.AffiliateCommission), decimal.NullDecimal{}
	}
	switch attribution.CommissionType {
	case paymentdomain.CommissionFlat:
		return attribution.CommissionRate.Round(0), decimal.NullDecimal{}
	case paymentdomain.CommissionPercentage:
		return percentOf(total, attribution.CommissionRate), decimal.NewNullDecimal(attribution.CommissionRate)
	default:
		return decimal.Zero, decimal.NullDecimal{}
	}
}

// splitPlatform gives the company its percent of remaining, then splits
// the rest across partners. Owners without a user id are skipped.
func splitPlatform(remaining decimal.Decimal, platform config.RevenueConfig) ([]Share, error) {
	if !remaining.IsPositive() {
		return nil, nil
	}
	var shares []Share

	companyID, err := ownerID(platform.Company)
	if err != nil {
		return nil, err
	}
	companyPercent := decimal.NewFromFloat(platform.Company.Percent)
	company := percentOf(remaining, companyPercent)
	rest := remaining.Sub(company)
	if companyID != 0 && company.IsPositive() {
		shares = append(shares, Share{Type: ShareCompany, UserID: companyID, Amount: company.IntPart(), Percent: decimal.NewNullDecimal(companyPercent)})
	}

	for _, partner := range platform.Partners {
		partnerID, err := ownerID(partner)
		if err != nil {
			return nil, err
		}
		if partnerID == 0 {
			continue
		}
		percent := decimal.NewFromFloat(partner.Percent)
		amount := percentOf(rest, percent)
		if !amount.IsPositive() {
			continue
		}
		shares = append(shares, Share{Type: PartnerShareType(partner.Name), UserID: partnerID, Amount: amount.IntPart(), Percent: decimal.NewNullDecimal(percent)})
	}
	return shares, nil
}

// PartnerShareType turns a configured partner name into a share type.
func PartnerShareType(name string) ShareType {
	return ShareType(config.PlatformShare{Name: name}.ShareKey())
}

func ownerID(share config.PlatformShare) (snowflake.ID, error) {
	raw := strings.TrimSpace(share.UserID)
	if raw == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPlatformOwner, share.Name, raw)
	}
	return id, nil
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(0)
}
