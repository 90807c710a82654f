package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SeedUser inserts a catalog user and returns its id.
func SeedUser(t testing.TB, db *gorm.DB, node *snowflake.Node, name, email, role string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	if role == "" {
		role = "MEMBER"
	}
	if err := db.Exec(
		`INSERT INTO users (id, name, email, whatsapp, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, email, "6281200000000", role, time.Now().UTC(),
	).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// TransactionFixture describes a checkout-created transaction row.
type TransactionFixture struct {
	ExternalID  string
	UserID      snowflake.ID
	ProductType string
	Amount      int64
	Status      string
	Metadata    map[string]any
	PaidAt      *time.Time
	CreatedAt   time.Time
}

// SeedTransaction inserts a transaction as checkout would have written it.
func SeedTransaction(t testing.TB, db *gorm.DB, node *snowflake.Node, fx TransactionFixture) snowflake.ID {
	t.Helper()
	id := node.Generate()
	if fx.Status == "" {
		fx.Status = "PENDING"
	}
	if fx.CreatedAt.IsZero() {
		fx.CreatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(fx.Metadata)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO transactions (
			id, external_id, user_id, product_type, amount, status, paid_at, metadata,
			customer_name, customer_email, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fx.ExternalID, fx.UserID, fx.ProductType, fx.Amount, fx.Status, fx.PaidAt,
		string(metadata), "Budi", "budi@example.com", fx.CreatedAt, fx.CreatedAt,
	).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return id
}

// Exec runs a fixture statement and fails the test on error.
func Exec(t testing.TB, db *gorm.DB, sql string, args ...any) {
	t.Helper()
	if err := db.Exec(sql, args...).Error; err != nil {
		t.Fatalf("exec fixture: %v", err)
	}
}
