package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CommissionType string

const (
	CommissionFlat       CommissionType = "FLAT"
	CommissionPercentage CommissionType = "PERCENTAGE"
)

// Attribution carries the revenue inputs frozen at checkout time.
type Attribution struct {
	AffiliateID snowflake.ID
	// AffiliateCommission is an explicit amount and wins over the rate.
	AffiliateCommission *int64
	CommissionType      CommissionType
	CommissionRate      decimal.Decimal
	CreatorID           snowflake.ID
	CreatorSharePercent decimal.Decimal
	CustomerWhatsapp    string
}

// Purchase is the decoded, product-specific view of transactions.metadata.
type Purchase interface {
	ProductType() ProductType
	Attribution() Attribution
}

type MembershipPurchase struct {
	MembershipID snowflake.ID
	attribution  Attribution
}

type CoursePurchase struct {
	CourseID    snowflake.ID
	attribution Attribution
}

type ProductPurchase struct {
	ProductID   snowflake.ID
	attribution Attribution
}

type EventPurchase struct {
	EventID     snowflake.ID
	attribution Attribution
}

type SupplierPurchase struct {
	PackageID   snowflake.ID
	UpgradeFrom snowflake.ID
	attribution Attribution
}

// IsUpgrade reports whether the purchase replaces the user's active tier.
func (p SupplierPurchase) IsUpgrade() bool { return p.UpgradeFrom != 0 }

type CreditTopUpPurchase struct {
	// AffiliateID owns the credit account being topped up.
	AffiliateID snowflake.ID
	Credits     int64
	attribution Attribution
}

func (MembershipPurchase) ProductType() ProductType  { return ProductTypeMembership }
func (CoursePurchase) ProductType() ProductType      { return ProductTypeCourse }
func (ProductPurchase) ProductType() ProductType     { return ProductTypeProduct }
func (EventPurchase) ProductType() ProductType       { return ProductTypeEvent }
func (SupplierPurchase) ProductType() ProductType    { return ProductTypeSupplierMembership }
func (CreditTopUpPurchase) ProductType() ProductType { return ProductTypeCreditTopUp }

func (p MembershipPurchase) Attribution() Attribution  { return p.attribution }
func (p CoursePurchase) Attribution() Attribution      { return p.attribution }
func (p ProductPurchase) Attribution() Attribution     { return p.attribution }
func (p EventPurchase) Attribution() Attribution       { return p.attribution }
func (p SupplierPurchase) Attribution() Attribution    { return p.attribution }
func (p CreditTopUpPurchase) Attribution() Attribution { return p.attribution }

// DecodePurchase turns the checkout metadata bag into a typed purchase.
// Identifiers may be encoded as strings or numbers.
func DecodePurchase(txn *Transaction) (Purchase, error) {
	if txn == nil {
		return nil, ErrInvalidMetadata
	}
	bag := metadataBag{}
	if len(bytes.TrimSpace(txn.Metadata)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(txn.Metadata))
		dec.UseNumber()
		if err := dec.Decode(&bag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}

	attribution, err := bag.attribution()
	if err != nil {
		return nil, err
	}

	productType := txn.ProductType
	if strings.EqualFold(bag.getString("type"), string(ProductTypeCreditTopUp)) {
		productType = ProductTypeCreditTopUp
	}

	switch productType {
	case ProductTypeMembership:
		id, err := bag.requireID("membershipId")
		if err != nil {
			return nil, err
		}
		return MembershipPurchase{MembershipID: id, attribution: attribution}, nil
	case ProductTypeCourse:
		id, err := bag.requireID("courseId")
		if err != nil {
			return nil, err
		}
		return CoursePurchase{CourseID: id, attribution: attribution}, nil
	case ProductTypeProduct:
		id, err := bag.requireID("productId")
		if err != nil {
			return nil, err
		}
		return ProductPurchase{ProductID: id, attribution: attribution}, nil
	case ProductTypeEvent:
		id, err := bag.requireID("eventId")
		if err != nil {
			return nil, err
		}
		return EventPurchase{EventID: id, attribution: attribution}, nil
	case ProductTypeSupplierMembership:
		id, err := bag.getID("packageId")
		if err != nil {
			return nil, err
		}
		if id == 0 {
			if id, err = bag.requireID("upgradeTo"); err != nil {
				return nil, err
			}
		}
		from, err := bag.getID("upgradeFrom")
		if err != nil {
			return nil, err
		}
		return SupplierPurchase{PackageID: id, UpgradeFrom: from, attribution: attribution}, nil
	case ProductTypeCreditTopUp:
		credits, ok, err := bag.getInt64("credits")
		if err != nil {
			return nil, err
		}
		if !ok || credits <= 0 {
			return nil, fmt.Errorf("%w: credits must be positive", ErrInvalidMetadata)
		}
		owner := attribution.AffiliateID
		if owner == 0 {
			owner = txn.UserID
		}
		// The buyer is the account owner, not a referrer.
		attribution.AffiliateID = 0
		attribution.AffiliateCommission = nil
		return CreditTopUpPurchase{AffiliateID: owner, Credits: credits, attribution: attribution}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProductType, productType)
	}
}

type metadataBag map[string]any

func (b metadataBag) attribution() (Attribution, error) {
	var out Attribution
	var err error

	if out.AffiliateID, err = b.getID("affiliateId"); err != nil {
		return out, err
	}
	commission, ok, err := b.getInt64("affiliateCommission")
	if err != nil {
		return out, err
	}
	if ok {
		out.AffiliateCommission = &commission
	}
	out.CommissionType = CommissionType(strings.ToUpper(b.getString("commissionType")))
	if out.CommissionRate, err = b.getDecimal("commissionRate"); err != nil {
		return out, err
	}

	if out.CreatorID, err = b.getID("creatorId"); err != nil {
		return out, err
	}
	if out.CreatorSharePercent, err = b.getDecimal("creatorSharePercent"); err != nil {
		return out, err
	}
	if out.CreatorID == 0 {
		if out.CreatorID, err = b.getID("mentorId"); err != nil {
			return out, err
		}
		if out.CreatorSharePercent, err = b.getDecimal("mentorSharePercent"); err != nil {
			return out, err
		}
	}
	out.CustomerWhatsapp = b.getString("customerWhatsapp")
	return out, nil
}

func (b metadataBag) getString(key string) string {
	switch v := b[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func (b metadataBag) getID(key string) (snowflake.ID, error) {
	raw := b.getString(key)
	if raw == "" {
		return 0, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidMetadata, key, raw)
	}
	return id, nil
}

func (b metadataBag) requireID(key string) (snowflake.ID, error) {
	id, err := b.getID(key)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidMetadata, key)
	}
	return id, nil
}

func (b metadataBag) getInt64(key string) (int64, bool, error) {
	raw := b.getString(key)
	if raw == "" {
		return 0, false, nil
	}
	if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return parsed, true, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %s=%q", ErrInvalidMetadata, key, raw)
	}
	return int64(math.Round(f)), true, nil
}

func (b metadataBag) getDecimal(key string) (decimal.Decimal, error) {
	raw := b.getString(key)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidMetadata, key, raw)
	}
	return d, nil
}
