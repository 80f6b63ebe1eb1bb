package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PaymentFields carries the gateway truth persisted onto an order on every
// webhook delivery, regardless of status.
type PaymentFields struct {
	PaymentID       string
	GatewayStatus   string
	PaymentStatus   PaymentStatus
	Method          string
	PayerEmail      string
	MerchantOrderID string
	ReceiptURL      string
	ApprovedAt      *time.Time
	UpdatedAt       time.Time
}

// Repository is the narrow order-mutation surface used by reconciliation.
// Uniqueness of external_reference and payment_id is enforced here, not by
// callers.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*Order, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*Order, error)
	InsertWithItems(ctx context.Context, db *gorm.DB, order *Order, items []OrderItem) error
	UpdatePaymentFields(ctx context.Context, db *gorm.DB, orderID snowflake.ID, fields PaymentFields) (bool, error)
	ApproveAndAdvanceFulfillment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, approvedAt time.Time) (bool, error)
	AdvanceFulfillment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from, to FulfillmentStatus, now time.Time) (bool, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
}
