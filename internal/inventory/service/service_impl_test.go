package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/inventory/domain"
	"github.com/viveroverde/vivero/internal/inventory/repository"
	"github.com/viveroverde/vivero/internal/inventory/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT,
			image TEXT,
			price BIGINT NOT NULL,
			stock INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_products_slug ON products(slug)`,
		`CREATE TABLE stock_movements (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_stock_movements_order_product ON stock_movements(order_id, product_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) (domain.Service, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Now().UTC()),
		Repo:     repository.Provide(),
		AuditSvc: noopAuditService{},
	})
	return svc, node
}

func seedProduct(t *testing.T, db *gorm.DB, node *snowflake.Node, name string, stock int) domain.Product {
	t.Helper()
	now := time.Now().UTC()
	product := domain.Product{
		ID:        node.Generate(),
		Name:      name,
		Slug:      fmt.Sprintf("%s-%d", name, now.UnixNano()),
		Price:     4990,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repository.Provide().Insert(context.Background(), db, &product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func stockOf(t *testing.T, db *gorm.DB, id snowflake.ID) int {
	t.Helper()
	var stock int
	if err := db.Raw(`SELECT stock FROM products WHERE id = ?`, id).Scan(&stock).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

func TestValidateAvailabilityReportsAllShortages(t *testing.T) {
	db := setupTestDB(t)
	svc, node := newService(t, db)

	fern := seedProduct(t, db, node, "helecho", 5)
	cactus := seedProduct(t, db, node, "cactus", 1)

	err := svc.ValidateAvailability(context.Background(), []domain.Demand{
		{ProductID: fern.ID, Quantity: 10},
		{ProductID: cactus.ID, Quantity: 3},
	})
	var short *domain.InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(short.Shortages) != 2 {
		t.Fatalf("expected both shortages reported, got %+v", short.Shortages)
	}

	if err := svc.ValidateAvailability(context.Background(), []domain.Demand{
		{ProductID: fern.ID, Quantity: 5},
	}); err != nil {
		t.Fatalf("expected full stock demand to pass, got %v", err)
	}
}

func TestValidateAvailabilityUnknownProduct(t *testing.T) {
	db := setupTestDB(t)
	svc, node := newService(t, db)

	err := svc.ValidateAvailability(context.Background(), []domain.Demand{
		{ProductID: node.Generate(), Quantity: 1},
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product_not_found, got %v", err)
	}
}

func TestDecrementAllIsIdempotentPerOrder(t *testing.T) {
	db := setupTestDB(t)
	svc, node := newService(t, db)

	fern := seedProduct(t, db, node, "helecho", 5)
	orderID := node.Generate()
	demands := []domain.Demand{{ProductID: fern.ID, Quantity: 2}}

	result := svc.DecrementAll(context.Background(), orderID, demands)
	if len(result.Succeeded) != 1 || len(result.Failed) != 0 {
		t.Fatalf("unexpected first run result %+v", result)
	}
	if got := stockOf(t, db, fern.ID); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}

	// Replay for the same order must not decrement again.
	result = svc.DecrementAll(context.Background(), orderID, demands)
	if len(result.AlreadyApplied) != 1 || len(result.Succeeded) != 0 {
		t.Fatalf("unexpected replay result %+v", result)
	}
	if got := stockOf(t, db, fern.ID); got != 3 {
		t.Fatalf("expected stock to stay 3, got %d", got)
	}

	// A different order decrements independently.
	result = svc.DecrementAll(context.Background(), node.Generate(), demands)
	if len(result.Succeeded) != 1 {
		t.Fatalf("unexpected second order result %+v", result)
	}
	if got := stockOf(t, db, fern.ID); got != 1 {
		t.Fatalf("expected stock 1, got %d", got)
	}
}

func TestDecrementAllFailsItemsIndependently(t *testing.T) {
	db := setupTestDB(t)
	svc, node := newService(t, db)

	fern := seedProduct(t, db, node, "helecho", 5)
	cactus := seedProduct(t, db, node, "cactus", 1)
	orderID := node.Generate()

	result := svc.DecrementAll(context.Background(), orderID, []domain.Demand{
		{ProductID: fern.ID, Quantity: 2},
		{ProductID: cactus.ID, Quantity: 3},
	})

	if len(result.Succeeded) != 1 || result.Succeeded[0] != fern.ID {
		t.Fatalf("expected fern decrement to succeed, got %+v", result)
	}
	if len(result.Failed) != 1 || result.Failed[0].ProductID != cactus.ID {
		t.Fatalf("expected cactus decrement to fail, got %+v", result)
	}
	if result.Failed[0].Available != 1 {
		t.Fatalf("expected shortage to report available 1, got %d", result.Failed[0].Available)
	}

	// The fern decrement stands despite the cactus failure.
	if got := stockOf(t, db, fern.ID); got != 3 {
		t.Fatalf("expected fern stock 3, got %d", got)
	}
	if got := stockOf(t, db, cactus.ID); got != 1 {
		t.Fatalf("expected cactus stock unchanged, got %d", got)
	}
}
