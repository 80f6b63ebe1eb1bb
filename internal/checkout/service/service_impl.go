package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	"github.com/viveroverde/vivero/internal/checkout/domain"
	"github.com/viveroverde/vivero/internal/clock"
	inventorydomain "github.com/viveroverde/vivero/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	InventorySvc inventorydomain.Service
	AuditSvc     auditdomain.Service
}

type service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	inventorySvc inventorydomain.Service
	auditSvc     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:           p.DB,
		log:          p.Log.Named("checkout.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		inventorySvc: p.InventorySvc,
		auditSvc:     p.AuditSvc,
	}
}

// Stage snapshots a cart before the customer is redirected to the gateway.
// Products must exist but stock is not committed here.
func (s *service) Stage(ctx context.Context, req domain.StageRequest) (*domain.StagedCheckout, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", domain.ErrInvalidStage)
	}
	if !req.ShippingMethod.Valid() {
		return nil, fmt.Errorf("%w: shipping method %q", domain.ErrInvalidStage, req.ShippingMethod)
	}

	ids := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidStage)
		}
		ids = append(ids, item.ProductID)
	}
	if _, err := s.inventorySvc.Products(ctx, ids); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req.Items)
	if err != nil {
		return nil, err
	}

	staged := &domain.StagedCheckout{
		ID:                s.genID.Generate(),
		ExternalReference: ulid.Make().String(),
		Items:             datatypes.JSON(payload),
		ShippingMethod:    req.ShippingMethod,
		CustomerName:      strings.TrimSpace(req.CustomerName),
		CustomerEmail:     strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:     strings.TrimSpace(req.CustomerPhone),
		ShippingAddress:   req.ShippingAddress,
		CreatedAt:         s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, staged); err != nil {
		return nil, err
	}

	targetID := staged.ExternalReference
	if err := s.auditSvc.AuditLog(ctx, "checkout.staged", "staged_checkout", &targetID, map[string]any{
		"items":           len(req.Items),
		"shipping_method": string(req.ShippingMethod),
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}

	return staged, nil
}
