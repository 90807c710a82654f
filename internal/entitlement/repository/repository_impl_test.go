package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/eksporyuk/internal/entitlement/domain"
	"github.com/smallbiznis/eksporyuk/internal/entitlement/repository"
	"github.com/smallbiznis/eksporyuk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertUserMembershipReportsConcurrentGrant(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	item := domain.UserMembership{
		ID:            node.Generate(),
		UserID:        node.Generate(),
		MembershipID:  node.Generate(),
		Status:        domain.MembershipStatusActive,
		IsActive:      true,
		StartDate:     now,
		EndDate:       now.AddDate(0, 1, 0),
		TransactionID: node.Generate(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.InsertUserMembership(ctx, db, item))

	item.ID = node.Generate()
	item.TransactionID = node.Generate()
	err := repo.InsertUserMembership(ctx, db, item)
	assert.ErrorIs(t, err, domain.ErrConcurrentGrant)
	testutil.AssertCount(t, db, 1, "user_memberships", "user_id = ?", item.UserID)
}

func TestInsertGrantIsOncePerTransaction(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	txnID := node.Generate()
	userID := node.Generate()

	first, err := repo.InsertGrant(ctx, db, domain.Grant{ID: node.Generate(), TransactionID: txnID, GrantType: domain.GrantMembership, UserID: userID, CreatedAt: now})
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.InsertGrant(ctx, db, domain.Grant{ID: node.Generate(), TransactionID: txnID, GrantType: domain.GrantMembership, UserID: userID, CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, again)
}
