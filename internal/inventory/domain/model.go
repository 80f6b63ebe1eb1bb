package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a sellable nursery item. Price is in cents.
type Product struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:text;not null"`
	Slug        string       `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Description string       `json:"description" gorm:"type:text"`
	Image       *string      `json:"image,omitempty" gorm:"type:text"`
	Price       int64        `json:"price" gorm:"not null"`
	Stock       int          `json:"stock" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// StockMovement marks that an order already consumed stock for a product,
// making per-item decrements idempotent under replay.
type StockMovement struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID   snowflake.ID `json:"order_id" gorm:"not null"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null"`
	Quantity  int          `json:"quantity" gorm:"not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (StockMovement) TableName() string { return "stock_movements" }
