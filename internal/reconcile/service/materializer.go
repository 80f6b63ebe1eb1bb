package service

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/viveroverde/vivero/internal/checkout/domain"
	gatewaydomain "github.com/viveroverde/vivero/internal/gateway/domain"
	inventorydomain "github.com/viveroverde/vivero/internal/inventory/domain"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
	pkgdb "github.com/viveroverde/vivero/pkg/db"
	"go.uber.org/zap"
)

// materialize resolves a payment's external reference to an order, creating
// one from staged checkout data when needed. At most one order ever exists
// per external reference; the unique constraint is the final arbiter under
// concurrent deliveries.
func (s *service) materialize(ctx context.Context, info gatewaydomain.PaymentInfo) (*orderdomain.Order, error) {
	ref := info.ExternalReference

	// The order may have been created synchronously at checkout, before
	// any webhook. References minted before staging existed are plain
	// order ids.
	if existing, err := s.orderRepo.FindByExternalRef(ctx, s.db, ref); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if existing, err := s.orderRepo.FindByID(ctx, s.db, snowflake.ID(id)); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	staged, err := s.checkoutRepo.FindByExternalRef(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, checkoutdomain.ErrStagedDataNotFound
	}

	// A concurrent delivery may have materialized between the two lookups.
	if existing, err := s.orderRepo.FindByExternalRef(ctx, s.db, ref); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	order, items, err := s.buildOrder(ctx, staged)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.InsertWithItems(ctx, s.db, order, items); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Lost the insert race; the winner's order is authoritative.
			winner, findErr := s.orderRepo.FindByExternalRef(ctx, s.db, ref)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	if err := s.checkoutRepo.MarkConsumed(ctx, s.db, staged.ID, s.clock.Now()); err != nil {
		s.log.Warn("failed to mark staged checkout consumed",
			zap.String("external_reference", ref),
			zap.Error(err),
		)
	}

	s.metrics.RecordOrderMaterialized(ctx, string(order.PaymentStatus))
	return order, nil
}

// buildOrder snapshots product names, images and prices into order items so
// later catalog edits do not rewrite history.
func (s *service) buildOrder(ctx context.Context, staged *checkoutdomain.StagedCheckout) (*orderdomain.Order, []orderdomain.OrderItem, error) {
	var stagedItems []checkoutdomain.StagedItem
	if err := json.Unmarshal(staged.Items, &stagedItems); err != nil {
		return nil, nil, err
	}
	if len(stagedItems) == 0 {
		return nil, nil, checkoutdomain.ErrStagedDataNotFound
	}

	ids := make([]snowflake.ID, 0, len(stagedItems))
	for _, item := range stagedItems {
		ids = append(ids, item.ProductID)
	}
	products, err := s.inventorySvc.Products(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:                s.genID.Generate(),
		ExternalReference: staged.ExternalReference,
		PaymentStatus:     orderdomain.PaymentPending,
		FulfillmentStatus: orderdomain.FulfillmentNone,
		ShippingMethod:    staged.ShippingMethod,
		CustomerName:      staged.CustomerName,
		CustomerEmail:     staged.CustomerEmail,
		CustomerPhone:     staged.CustomerPhone,
		ShippingAddress:   staged.ShippingAddress,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	items := make([]orderdomain.OrderItem, 0, len(stagedItems))
	var total int64
	for _, stagedItem := range stagedItems {
		product := products[stagedItem.ProductID]
		subtotal := product.Price * int64(stagedItem.Quantity)
		total += subtotal
		items = append(items, orderdomain.OrderItem{
			ID:           s.genID.Generate(),
			OrderID:      order.ID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.Image,
			Quantity:     stagedItem.Quantity,
			UnitPrice:    product.Price,
			Subtotal:     subtotal,
			CreatedAt:    now,
		})
	}
	order.TotalAmount = total
	return order, items, nil
}

// demandsOf converts persisted order items into stock demands.
func demandsOf(items []orderdomain.OrderItem) []inventorydomain.Demand {
	demands := make([]inventorydomain.Demand, 0, len(items))
	for _, item := range items {
		demands = append(demands, inventorydomain.Demand{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return demands
}
