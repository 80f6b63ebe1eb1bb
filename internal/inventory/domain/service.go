package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Demand is a requested quantity for one product.
type Demand struct {
	ProductID snowflake.ID
	Quantity  int
}

// DecrementResult reports the per-item outcome of a best-effort decrement
// run. Failed items are a reconciliation backlog, never silently dropped.
type DecrementResult struct {
	Succeeded      []snowflake.ID
	AlreadyApplied []snowflake.ID
	Failed         []StockShortage
}

type Service interface {
	// Products resolves the given ids, failing when any is unknown.
	Products(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]Product, error)
	// ValidateAvailability checks every demand against current stock and
	// returns an *InsufficientStockError listing all shortages.
	ValidateAvailability(ctx context.Context, demands []Demand) error
	// DecrementAll decrements stock per item after approval. Items fail
	// independently; one failure neither rolls back others nor reverts
	// the approval.
	DecrementAll(ctx context.Context, orderID snowflake.ID, demands []Demand) DecrementResult
}

type Repository interface {
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Product, error)
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	// DecrementOne atomically decrements one product's stock for one order,
	// guarded by a stock_movements marker so replays do not double-apply.
	// Returns (applied=false, nil) when the marker already existed.
	DecrementOne(ctx context.Context, db *gorm.DB, movementID, orderID, productID snowflake.ID, qty int, now time.Time) (bool, error)
}
