package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StagedCheckout is the pre-gateway snapshot of a cart. It carries no stock
// commitment; it exists so a later webhook can materialize the real order.
type StagedCheckout struct {
	ID                snowflake.ID               `json:"id" gorm:"primaryKey"`
	ExternalReference string                     `json:"external_reference" gorm:"type:text;not null;uniqueIndex"`
	Items             datatypes.JSON             `json:"items" gorm:"not null"`
	ShippingMethod    orderdomain.ShippingMethod `json:"shipping_method" gorm:"type:text;not null"`
	CustomerName      string                     `json:"customer_name" gorm:"type:text"`
	CustomerEmail     string                     `json:"customer_email" gorm:"type:text"`
	CustomerPhone     string                     `json:"customer_phone" gorm:"type:text"`
	ShippingAddress   *string                    `json:"shipping_address,omitempty" gorm:"type:text"`
	ConsumedAt        *time.Time                 `json:"consumed_at,omitempty"`
	CreatedAt         time.Time                  `json:"created_at" gorm:"not null"`
}

func (StagedCheckout) TableName() string { return "staged_checkouts" }

// StagedItem is one cart line inside the Items JSON blob. Prices are not
// staged; they are read from the catalog at materialization time.
type StagedItem struct {
	ProductID snowflake.ID `json:"product_id"`
	Quantity  int          `json:"quantity"`
}

type StageRequest struct {
	Items           []StagedItem               `json:"items"`
	ShippingMethod  orderdomain.ShippingMethod `json:"shipping_method"`
	CustomerName    string                     `json:"customer_name"`
	CustomerEmail   string                     `json:"customer_email"`
	CustomerPhone   string                     `json:"customer_phone"`
	ShippingAddress *string                    `json:"shipping_address,omitempty"`
}

type Service interface {
	Stage(ctx context.Context, req StageRequest) (*StagedCheckout, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, staged *StagedCheckout) error
	FindByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*StagedCheckout, error)
	MarkConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}

var (
	ErrStagedDataNotFound = errors.New("order_data_not_found")
	ErrInvalidStage       = errors.New("invalid_stage_request")
)
