// Package testutil opens in-memory SQLite databases carrying the production
// schema.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/eksporyuk/internal/migration"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// OpenDB returns an isolated in-memory database with migrations applied.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes writers the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplyStatements(sqlDB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

// Node returns a snowflake node for test fixtures.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// Count returns the number of rows in table matching where.
func Count(t testing.TB, db *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

// AssertCount fails the test when the row count differs from want.
func AssertCount(t testing.TB, db *gorm.DB, want int64, table string, where string, args ...any) {
	t.Helper()
	if got := Count(t, db, table, where, args...); got != want {
		t.Fatalf("expected %d rows in %s where %q, got %d", want, table, where, got)
	}
}
