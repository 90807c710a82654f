package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/eksporyuk/internal/catalog/domain"
	catalogservice "github.com/smallbiznis/eksporyuk/internal/catalog/service"
	"github.com/smallbiznis/eksporyuk/internal/clock"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"github.com/smallbiznis/eksporyuk/internal/entitlement/domain"
	notificationdomain "github.com/smallbiznis/eksporyuk/internal/notification/domain"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/eksporyuk/internal/payment/domain"
	"github.com/smallbiznis/eksporyuk/internal/providers/mailinglist"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       domain.Repository
	Catalog    *catalogservice.Service
	Publisher  notificationdomain.Publisher
	Subscriber mailinglist.Subscriber `optional:"true"`
}

// Service grants what a settled transaction paid for. Every grant runs in
// one DB transaction guarded by an entitlement_grants row, so a repeated
// call for the same transaction writes nothing. Mailing list and
// notification side effects run after commit and never fail the grant.
type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            domain.Repository
	catalog         *catalogservice.Service
	publisher       notificationdomain.Publisher
	subscriber      mailinglist.Subscriber
	externalTimeout time.Duration
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	subscriber := p.Subscriber
	if subscriber == nil {
		subscriber = mailinglist.NoOp{}
	}
	timeout := p.Cfg.Fulfillment.ExternalTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("entitlement.service"),
		genID:           p.GenID,
		clock:           clk,
		repo:            p.Repo,
		catalog:         p.Catalog,
		publisher:       p.Publisher,
		subscriber:      subscriber,
		externalTimeout: timeout,
	}
}

// GrantMembership activates or extends the membership, then joins its
// bundled groups, courses and products.
func (s *Service) GrantMembership(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.MembershipPurchase) error {
	membership, err := s.catalog.Membership(ctx, p.MembershipID)
	if err != nil {
		return err
	}

	granted, err := s.grant(ctx, txn, domain.GrantMembership, func(tx *gorm.DB, now time.Time) error {
		current, err := s.repo.FindUserMembership(ctx, tx, txn.UserID, membership.ID)
		if err != nil {
			return err
		}

		if current == nil {
			end, err := domain.MembershipExpiry(membership.Duration, now)
			if err != nil {
				return err
			}
			if err := s.repo.InsertUserMembership(ctx, tx, domain.UserMembership{
				ID:            s.genID.Generate(),
				UserID:        txn.UserID,
				MembershipID:  membership.ID,
				Status:        domain.MembershipStatusActive,
				IsActive:      true,
				StartDate:     now,
				EndDate:       end,
				TransactionID: txn.ID,
				ActivatedAt:   &now,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return fmt.Errorf("insert user membership: %w", err)
			}
		} else {
			base := now
			if current.IsActive {
				base = domain.RenewalBase(now, &current.EndDate)
			}
			end, err := domain.MembershipExpiry(membership.Duration, base)
			if err != nil {
				return err
			}
			if err := s.repo.RenewUserMembership(ctx, tx, current.ID, end, txn.ID, now); err != nil {
				return fmt.Errorf("renew user membership: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}
	if granted {
		s.subscribe(ctx, txn, membership.MailingList(), string(txn.ProductType), membership.Name)
	}

	// Bundle joins sit outside the grant guard: a failed join never undoes
	// the activation, and a replay retries only the joins still missing.
	return s.joinBundle(ctx, txn, membership)
}

// joinBundle runs each join as its own statement so one failure does not
// abort the others. Existing rows are skipped by the unique keys.
func (s *Service) joinBundle(ctx context.Context, txn *paymentdomain.Transaction, membership *catalogdomain.Membership) error {
	db := s.db.WithContext(ctx)
	now := s.clock.Now()
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("transaction_id", txn.ID.String()),
		zap.String("membership_id", membership.ID.String()),
	)

	var errs error
	joinFailed := func(err error) {
		log.Warn("membership bundle join failed", zap.Error(err))
		errs = errors.Join(errs, err)
	}
	for _, groupID := range membership.GroupIDs {
		if _, err := s.repo.InsertGroupMember(ctx, db, s.genID.Generate(), groupID, txn.UserID, now); err != nil {
			joinFailed(fmt.Errorf("join group %s: %w", groupID, err))
		}
	}
	for _, courseID := range membership.CourseIDs {
		if _, err := s.repo.InsertCourseEnrollment(ctx, db, s.genID.Generate(), txn.UserID, courseID, txn.ID, now); err != nil {
			joinFailed(fmt.Errorf("enroll course %s: %w", courseID, err))
		}
	}
	for _, productID := range membership.ProductIDs {
		if _, err := s.repo.InsertUserProduct(ctx, db, s.genID.Generate(), txn.UserID, productID, txn.ID, now); err != nil {
			joinFailed(fmt.Errorf("grant product %s: %w", productID, err))
		}
	}
	return errs
}

func (s *Service) GrantCourse(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.CoursePurchase) error {
	course, err := s.catalog.Course(ctx, p.CourseID)
	if err != nil {
		return err
	}

	granted, err := s.grant(ctx, txn, domain.GrantCourse, func(tx *gorm.DB, now time.Time) error {
		_, err := s.repo.InsertCourseEnrollment(ctx, tx, s.genID.Generate(), txn.UserID, course.ID, txn.ID, now)
		return err
	})
	if err != nil || !granted {
		return err
	}

	if course.MentorID != 0 {
		s.publish(ctx, notificationdomain.Message{
			Kind:          notificationdomain.KindCourseEnrolled,
			Channel:       notificationdomain.ChannelPush,
			Recipient:     course.MentorID.String(),
			Subject:       "Siswa baru",
			Data:          map[string]any{"message": fmt.Sprintf("%s bergabung di kelas %s", buyerName(txn), course.Title)},
			TransactionID: txn.ID,
		})
	}
	s.subscribe(ctx, txn, course.MailingList(), string(txn.ProductType), course.Title)
	return nil
}

func (s *Service) GrantProduct(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.ProductPurchase) error {
	product, err := s.catalog.Product(ctx, p.ProductID)
	if err != nil {
		return err
	}

	granted, err := s.grant(ctx, txn, domain.GrantProduct, func(tx *gorm.DB, now time.Time) error {
		_, err := s.repo.InsertUserProduct(ctx, tx, s.genID.Generate(), txn.UserID, product.ID, txn.ID, now)
		return err
	})
	if err != nil || !granted {
		return err
	}

	s.subscribe(ctx, txn, product.MailingList(), string(txn.ProductType), product.Name)
	return nil
}

func (s *Service) GrantEvent(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.EventPurchase) error {
	event, err := s.catalog.Event(ctx, p.EventID)
	if err != nil {
		return err
	}

	granted, err := s.grant(ctx, txn, domain.GrantEvent, func(tx *gorm.DB, now time.Time) error {
		_, err := s.repo.InsertEventRSVP(ctx, tx, s.genID.Generate(), event.ID, txn.UserID, txn.ID, now)
		return err
	})
	if err != nil || !granted {
		return err
	}

	if txn.CustomerEmail != "" {
		data := map[string]any{
			"name":     buyerName(txn),
			"event":    event.Title,
			"location": event.Location,
			"invoice":  txn.ExternalID,
		}
		if event.StartsAt != nil {
			data["starts_at"] = event.StartsAt.Format("02 Jan 2006 15:04")
		}
		s.publish(ctx, notificationdomain.Message{
			Kind:          notificationdomain.KindEventTicket,
			Channel:       notificationdomain.ChannelEmail,
			Recipient:     txn.CustomerEmail,
			Subject:       "Tiket " + event.Title,
			Template:      "event_ticket",
			Data:          data,
			TransactionID: txn.ID,
		})
	}
	if event.CreatorID != 0 {
		s.publish(ctx, notificationdomain.Message{
			Kind:          notificationdomain.KindTicketSold,
			Channel:       notificationdomain.ChannelPush,
			Recipient:     event.CreatorID.String(),
			Subject:       "Tiket terjual",
			Data:          map[string]any{"message": fmt.Sprintf("%s membeli tiket %s", buyerName(txn), event.Title)},
			TransactionID: txn.ID,
		})
	}
	return nil
}

// GrantSupplier activates a supplier tier. An upgrade deactivates every
// active tier first; a plain purchase renews the same package.
func (s *Service) GrantSupplier(ctx context.Context, txn *paymentdomain.Transaction, p paymentdomain.SupplierPurchase) error {
	pkg, err := s.catalog.SupplierPackage(ctx, p.PackageID)
	if err != nil {
		return err
	}

	_, err = s.grant(ctx, txn, domain.GrantSupplier, func(tx *gorm.DB, now time.Time) error {
		if p.IsUpgrade() {
			if _, err := s.repo.DeactivateSupplierMemberships(ctx, tx, txn.UserID, now); err != nil {
				return fmt.Errorf("deactivate supplier tiers: %w", err)
			}
			return s.insertSupplier(ctx, tx, txn, pkg, now)
		}

		current, err := s.repo.FindLatestSupplierMembership(ctx, tx, txn.UserID, pkg.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return s.insertSupplier(ctx, tx, txn, pkg, now)
		}
		base := now
		if current.IsActive {
			base = domain.RenewalBase(now, &current.EndDate)
		}
		end, err := domain.SupplierExpiry(pkg.Duration, base)
		if err != nil {
			return err
		}
		return s.repo.RenewSupplierMembership(ctx, tx, current.ID, end, txn.ID, now)
	})
	return err
}

func (s *Service) insertSupplier(ctx context.Context, tx *gorm.DB, txn *paymentdomain.Transaction, pkg *catalogdomain.SupplierPackage, now time.Time) error {
	end, err := domain.SupplierExpiry(pkg.Duration, now)
	if err != nil {
		return err
	}
	return s.repo.InsertSupplierMembership(ctx, tx, domain.SupplierMembership{
		ID:            s.genID.Generate(),
		UserID:        txn.UserID,
		PackageID:     pkg.ID,
		TransactionID: txn.ID,
		IsActive:      true,
		StartDate:     now,
		EndDate:       end,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// grant claims the grant row and runs apply in the same DB transaction. It
// reports false, without calling apply, when the grant already exists.
func (s *Service) grant(ctx context.Context, txn *paymentdomain.Transaction, grantType domain.GrantType, apply func(tx *gorm.DB, now time.Time) error) (bool, error) {
	if txn == nil || txn.ID == 0 || txn.UserID == 0 {
		return false, domain.ErrInvalidGrant
	}
	now := s.clock.Now()
	granted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertGrant(ctx, tx, domain.Grant{
			ID:            s.genID.Generate(),
			TransactionID: txn.ID,
			GrantType:     grantType,
			UserID:        txn.UserID,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("record %s grant: %w", grantType, err)
		}
		if !inserted {
			return nil
		}
		if err := apply(tx, now); err != nil {
			return err
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("grant_type", string(grantType)),
		zap.String("transaction_id", txn.ID.String()),
	)
	if granted {
		log.Info("entitlement granted", zap.String("user_id", txn.UserID.String()))
	} else {
		log.Debug("entitlement already granted")
	}
	return granted, nil
}

func (s *Service) subscribe(ctx context.Context, txn *paymentdomain.Transaction, list catalogdomain.MailingList, purchaseType, item string) {
	if !list.Enabled() || txn.CustomerEmail == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.externalTimeout)
	defer cancel()

	err := s.subscriber.Subscribe(ctx, mailinglist.Subscription{
		ListID: list.ID,
		Email:  txn.CustomerEmail,
		Name:   txn.CustomerName,
		Phone:  txn.CustomerWhatsapp,
		Purchase: mailinglist.Purchase{
			Type:          purchaseType,
			Item:          item,
			TransactionID: txn.ExternalID,
			Amount:        txn.Amount,
		},
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("mailing list subscription failed",
			zap.String("list_id", list.ID),
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, msg notificationdomain.Message) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, msg); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("failed to queue notification",
			zap.String("kind", string(msg.Kind)),
			zap.String("transaction_id", msg.TransactionID.String()),
			zap.Error(err),
		)
	}
}

func buyerName(txn *paymentdomain.Transaction) string {
	if txn.CustomerName != "" {
		return txn.CustomerName
	}
	return "Member"
}
