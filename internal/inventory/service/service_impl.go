package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("inventory.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *service) Products(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]domain.Product, error) {
	products, err := s.repo.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[snowflake.ID]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, domain.ErrProductNotFound
		}
	}
	return byID, nil
}

// ValidateAvailability checks all demands against current stock. It is a
// point-in-time read; the decrement itself re-checks atomically.
func (s *service) ValidateAvailability(ctx context.Context, demands []domain.Demand) error {
	ids := make([]snowflake.ID, 0, len(demands))
	for _, demand := range demands {
		ids = append(ids, demand.ProductID)
	}

	products, err := s.Products(ctx, ids)
	if err != nil {
		return err
	}

	var shortages []domain.StockShortage
	for _, demand := range demands {
		product := products[demand.ProductID]
		if product.Stock < demand.Quantity {
			shortages = append(shortages, domain.StockShortage{
				ProductID: demand.ProductID,
				Requested: demand.Quantity,
				Available: product.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return &domain.InsufficientStockError{Shortages: shortages}
	}
	return nil
}

// DecrementAll runs after approval is committed. Items are decremented
// independently; a failure on one is recorded and the rest proceed.
func (s *service) DecrementAll(ctx context.Context, orderID snowflake.ID, demands []domain.Demand) domain.DecrementResult {
	var result domain.DecrementResult
	now := s.clock.Now()

	for _, demand := range demands {
		applied, err := s.repo.DecrementOne(ctx, s.db, s.genID.Generate(), orderID, demand.ProductID, demand.Quantity, now)
		switch {
		case err == nil && applied:
			result.Succeeded = append(result.Succeeded, demand.ProductID)
		case err == nil:
			result.AlreadyApplied = append(result.AlreadyApplied, demand.ProductID)
		case errors.Is(err, domain.ErrStockExhausted):
			shortage := s.reportShortage(ctx, orderID, demand)
			result.Failed = append(result.Failed, shortage)
		default:
			s.log.Error("stock decrement failed",
				zap.String("order_id", orderID.String()),
				zap.String("product_id", demand.ProductID.String()),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, domain.StockShortage{
				ProductID: demand.ProductID,
				Requested: demand.Quantity,
				Available: -1,
			})
		}
	}
	return result
}

func (s *service) reportShortage(ctx context.Context, orderID snowflake.ID, demand domain.Demand) domain.StockShortage {
	shortage := domain.StockShortage{
		ProductID: demand.ProductID,
		Requested: demand.Quantity,
		Available: 0,
	}
	if products, err := s.repo.FindByIDs(ctx, s.db, []snowflake.ID{demand.ProductID}); err == nil && len(products) == 1 {
		shortage.Available = products[0].Stock
	}

	s.log.Warn("stock decrement short",
		zap.String("order_id", orderID.String()),
		zap.String("product_id", demand.ProductID.String()),
		zap.Int("requested", shortage.Requested),
		zap.Int("available", shortage.Available),
	)

	targetID := orderID.String()
	if err := s.auditSvc.AuditLog(ctx, "inventory.decrement_failed", "order", &targetID, map[string]any{
		"product_id": demand.ProductID.String(),
		"requested":  shortage.Requested,
		"available":  shortage.Available,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return shortage
}
