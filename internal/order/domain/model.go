package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ShippingMethod selects the fulfillment branch taken on payment approval.
type ShippingMethod string

const (
	ShippingDelivery ShippingMethod = "delivery"
	ShippingPickup   ShippingMethod = "pickup"
)

func (m ShippingMethod) Valid() bool {
	return m == ShippingDelivery || m == ShippingPickup
}

// Order is the authoritative purchase record. external_reference is the
// checkout correlation key and is immutable after creation; payment_id is
// unique across orders once set.
type Order struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	ExternalReference string            `json:"external_reference" gorm:"type:text;not null;uniqueIndex"`
	PaymentID         *string           `json:"payment_id,omitempty" gorm:"type:text"`
	PaymentStatus     PaymentStatus     `json:"payment_status" gorm:"type:text;not null"`
	GatewayStatus     string            `json:"gateway_status" gorm:"type:text"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status" gorm:"type:text;not null"`
	ShippingMethod    ShippingMethod    `json:"shipping_method" gorm:"type:text;not null"`
	TotalAmount       int64             `json:"total_amount" gorm:"not null"`

	CustomerName    string  `json:"customer_name" gorm:"type:text"`
	CustomerEmail   string  `json:"customer_email" gorm:"type:text"`
	CustomerPhone   string  `json:"customer_phone" gorm:"type:text"`
	ShippingAddress *string `json:"shipping_address,omitempty" gorm:"type:text"`

	PaymentMethod   *string    `json:"payment_method,omitempty" gorm:"type:text"`
	PayerEmail      *string    `json:"payer_email,omitempty" gorm:"type:text"`
	MerchantOrderID *string    `json:"merchant_order_id,omitempty" gorm:"type:text"`
	ReceiptURL      *string    `json:"receipt_url,omitempty" gorm:"type:text"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`

	Items []OrderItem `json:"items,omitempty" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is a purchased line owned by exactly one order. Display fields
// are snapshots taken at order creation so later product edits do not
// rewrite history.
type OrderItem struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID `json:"order_id" gorm:"not null;index"`
	ProductID    snowflake.ID `json:"product_id" gorm:"not null"`
	ProductName  string       `json:"product_name" gorm:"type:text;not null"`
	ProductImage *string      `json:"product_image,omitempty" gorm:"type:text"`
	Quantity     int          `json:"quantity" gorm:"not null"`
	UnitPrice    int64        `json:"unit_price" gorm:"not null"`
	Subtotal     int64        `json:"subtotal" gorm:"not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
}

func (OrderItem) TableName() string { return "order_items" }
