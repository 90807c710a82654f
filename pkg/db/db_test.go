package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: wallets.user_id")))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestDialect(t *testing.T) {
	for _, typ := range []string{"postgres", "mysql", "sqlite", ""} {
		d, err := Dialect(config.Config{DBType: typ, DBName: "eksporyuk"})
		require.NoError(t, err, typ)
		assert.NotNil(t, d)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestPoolConfigDefaults(t *testing.T) {
	pool := poolConfig(config.Config{DBConnMaxLifetime: 300})
	assert.Equal(t, 10, pool.MaxIdleConn)
	assert.Equal(t, 50, pool.MaxOpenConn)
	assert.Equal(t, 5*time.Minute, pool.ConnMaxLifetime)
}
