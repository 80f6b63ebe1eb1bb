package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// Advance applies an operator fulfillment action. Transitions are only
// reachable from approved orders; anything else is an illegal transition
// and leaves the row untouched.
func (s *service) Advance(ctx context.Context, id snowflake.ID, action domain.FulfillmentAction) (*domain.Order, error) {
	target, ok := action.TargetStatus()
	if !ok {
		return nil, domain.ErrInvalidFulfillmentStep
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	if order.PaymentStatus != domain.PaymentApproved {
		return nil, domain.ErrIllegalTransition
	}
	if !domain.CanTransitionFulfillment(order.FulfillmentStatus, target) {
		return nil, domain.ErrIllegalTransition
	}

	moved, err := s.repo.AdvanceFulfillment(ctx, s.db, order.ID, order.FulfillmentStatus, target, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost the race against a concurrent action.
		return nil, domain.ErrIllegalTransition
	}

	s.audit(ctx, order.ID, string(order.FulfillmentStatus), string(target), string(action))

	order.FulfillmentStatus = target
	order.UpdatedAt = s.clock.Now()
	return order, nil
}

func (s *service) audit(ctx context.Context, orderID snowflake.ID, from, to, action string) {
	targetID := orderID.String()
	if err := s.auditSvc.AuditLog(ctx, "order.fulfillment_advanced", "order", &targetID, map[string]any{
		"action": action,
		"from":   from,
		"to":     to,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}
