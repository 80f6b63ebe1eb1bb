package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrProductNotFound = errors.New("product_not_found")
	// ErrStockExhausted is returned by a decrement that would push stock
	// below zero.
	ErrStockExhausted = errors.New("stock_exhausted")
)

// StockShortage describes one line item that cannot be satisfied.
type StockShortage struct {
	ProductID snowflake.ID `json:"product_id"`
	Requested int          `json:"requested"`
	Available int          `json:"available"`
}

// InsufficientStockError reports every failing line item at once so
// operators see the whole shortage, not just the first.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient_stock: %d item(s) short", len(e.Shortages))
}
