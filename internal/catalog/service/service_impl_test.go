package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/eksporyuk/internal/catalog/domain"
	"github.com/smallbiznis/eksporyuk/internal/catalog/repository"
	"github.com/smallbiznis/eksporyuk/internal/catalog/service"
	"github.com/smallbiznis/eksporyuk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMembershipLoadsBundlesAndCaches(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	now := time.Now().UTC()

	membershipID := node.Generate()
	testutil.Exec(t, db,
		`INSERT INTO memberships (id, name, slug, duration, price, mailing_list_id, auto_add_to_list, created_at)
		 VALUES (?, 'Pro', 'pro', 'TWELVE_MONTHS', 500000, 'list-pro', TRUE, ?)`,
		membershipID, now,
	)
	groupID, courseA, courseB := node.Generate(), node.Generate(), node.Generate()
	testutil.Exec(t, db, `INSERT INTO membership_groups (membership_id, group_id) VALUES (?, ?)`, membershipID, groupID)
	testutil.Exec(t, db, `INSERT INTO membership_courses (membership_id, course_id) VALUES (?, ?), (?, ?)`, membershipID, courseB, membershipID, courseA)

	svc := service.NewService(service.Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	membership, err := svc.Membership(ctx, membershipID)
	require.NoError(t, err)
	assert.Equal(t, "TWELVE_MONTHS", membership.Duration)
	assert.True(t, membership.MailingList().Enabled())
	assert.Equal(t, groupID, membership.GroupIDs[0])
	assert.Equal(t, courseA, membership.CourseIDs[0])
	assert.Len(t, membership.CourseIDs, 2)
	assert.Empty(t, membership.ProductIDs)

	// Served from cache after the row is gone.
	testutil.Exec(t, db, `DELETE FROM memberships WHERE id = ?`, membershipID)
	again, err := svc.Membership(ctx, membershipID)
	require.NoError(t, err)
	assert.Equal(t, "Pro", again.Name)

	svc.Purge()
	_, err = svc.Membership(ctx, membershipID)
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestLookupsHandleNullableColumns(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	now := time.Now().UTC()

	courseID, eventID, packageID := node.Generate(), node.Generate(), node.Generate()
	testutil.Exec(t, db, `INSERT INTO courses (id, title, created_at) VALUES (?, 'Ekspor 101', ?)`, courseID, now)
	testutil.Exec(t, db, `INSERT INTO events (id, title, created_at) VALUES (?, 'Webinar', ?)`, eventID, now)
	testutil.Exec(t, db, `INSERT INTO supplier_packages (id, name, tier, duration, price, created_at) VALUES (?, 'Gold', 'GOLD', 'YEARLY', 1000000, ?)`, packageID, now)
	adminID := testutil.SeedUser(t, db, node, "Admin", "admin@example.com", domain.RoleAdmin)
	testutil.SeedUser(t, db, node, "Member", "member@example.com", "")

	svc := service.NewService(service.Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	course, err := svc.Course(ctx, courseID)
	require.NoError(t, err)
	assert.Zero(t, course.MentorID)
	assert.False(t, course.MailingList().Enabled())

	event, err := svc.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Zero(t, event.CreatorID)
	assert.Nil(t, event.StartsAt)

	pkg, err := svc.SupplierPackage(ctx, packageID)
	require.NoError(t, err)
	assert.Equal(t, "YEARLY", pkg.Duration)

	_, err = svc.Product(ctx, node.Generate())
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	admins, err := svc.Admins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, adminID, admins[0].ID)

	user, err := svc.User(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, "6281200000000", user.ContactPhone())

	_, err = svc.User(ctx, node.Generate())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
