package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/eksporyuk/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCacheSize = 512
	defaultCacheTTL  = 2 * time.Minute
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

// Service reads catalog rows for fulfillment. Catalog entities change rarely
// and are shared by many purchases, so lookups go through a short-lived LRU.
// Users are never cached: contact details must be current when a
// notification is queued.
type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository

	memberships *expirable.LRU[snowflake.ID, domain.Membership]
	courses     *expirable.LRU[snowflake.ID, domain.Course]
	products    *expirable.LRU[snowflake.ID, domain.Product]
	events      *expirable.LRU[snowflake.ID, domain.Event]
	packages    *expirable.LRU[snowflake.ID, domain.SupplierPackage]
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("catalog.service"),
		repo:        p.Repo,
		memberships: expirable.NewLRU[snowflake.ID, domain.Membership](defaultCacheSize, nil, defaultCacheTTL),
		courses:     expirable.NewLRU[snowflake.ID, domain.Course](defaultCacheSize, nil, defaultCacheTTL),
		products:    expirable.NewLRU[snowflake.ID, domain.Product](defaultCacheSize, nil, defaultCacheTTL),
		events:      expirable.NewLRU[snowflake.ID, domain.Event](defaultCacheSize, nil, defaultCacheTTL),
		packages:    expirable.NewLRU[snowflake.ID, domain.SupplierPackage](defaultCacheSize, nil, defaultCacheTTL),
	}
}

func (s *Service) User(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindUser(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// Admins returns every ADMIN user. An empty list is not an error.
func (s *Service) Admins(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListUsersByRole(ctx, s.db, domain.RoleAdmin)
}

func (s *Service) Membership(ctx context.Context, id snowflake.ID) (*domain.Membership, error) {
	return cached(ctx, s.memberships, id, domain.ErrMembershipNotFound, func(ctx context.Context) (*domain.Membership, error) {
		return s.repo.FindMembership(ctx, s.db, id)
	})
}

func (s *Service) Course(ctx context.Context, id snowflake.ID) (*domain.Course, error) {
	return cached(ctx, s.courses, id, domain.ErrCourseNotFound, func(ctx context.Context) (*domain.Course, error) {
		return s.repo.FindCourse(ctx, s.db, id)
	})
}

func (s *Service) Product(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	return cached(ctx, s.products, id, domain.ErrProductNotFound, func(ctx context.Context) (*domain.Product, error) {
		return s.repo.FindProduct(ctx, s.db, id)
	})
}

func (s *Service) Event(ctx context.Context, id snowflake.ID) (*domain.Event, error) {
	return cached(ctx, s.events, id, domain.ErrEventNotFound, func(ctx context.Context) (*domain.Event, error) {
		return s.repo.FindEvent(ctx, s.db, id)
	})
}

func (s *Service) SupplierPackage(ctx context.Context, id snowflake.ID) (*domain.SupplierPackage, error) {
	return cached(ctx, s.packages, id, domain.ErrSupplierPackageNotFound, func(ctx context.Context) (*domain.SupplierPackage, error) {
		return s.repo.FindSupplierPackage(ctx, s.db, id)
	})
}

// Purge drops every cached entry.
func (s *Service) Purge() {
	s.memberships.Purge()
	s.courses.Purge()
	s.products.Purge()
	s.events.Purge()
	s.packages.Purge()
}

// cached returns a copy of the cached value so callers cannot mutate it.
// Misses are not cached.
func cached[T any](ctx context.Context, cache *expirable.LRU[snowflake.ID, T], id snowflake.ID, notFound error, load func(context.Context) (*T, error)) (*T, error) {
	if item, ok := cache.Get(id); ok {
		return &item, nil
	}
	item, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, notFound
	}
	cache.Add(id, *item)
	copied := *item
	return &copied, nil
}
