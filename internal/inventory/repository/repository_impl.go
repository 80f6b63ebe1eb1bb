package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viveroverde/vivero/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, description, image, price, stock, created_at, updated_at
		 FROM products WHERE id IN ?`,
		ids,
	).Scan(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (
			id, name, slug, description, image, price, stock, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Name,
		product.Slug,
		product.Description,
		product.Image,
		product.Price,
		product.Stock,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

// DecrementOne writes the movement marker and the conditional stock update
// in one transaction. The marker insert is a no-op when this order already
// consumed the product; the stock update refuses to go below zero.
func (r *repo) DecrementOne(ctx context.Context, db *gorm.DB, movementID, orderID, productID snowflake.ID, qty int, now time.Time) (bool, error) {
	applied := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		marker := tx.Exec(
			`INSERT INTO stock_movements (id, order_id, product_id, quantity, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (order_id, product_id) DO NOTHING`,
			movementID,
			orderID,
			productID,
			qty,
			now,
		)
		if marker.Error != nil {
			return marker.Error
		}
		if marker.RowsAffected == 0 {
			// Already decremented for this order+product.
			return nil
		}

		res := tx.Exec(
			`UPDATE products SET stock = stock - ?, updated_at = ?
			 WHERE id = ? AND stock >= ?`,
			qty,
			now,
			productID,
			qty,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrStockExhausted
		}
		applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStockExhausted) {
			return false, domain.ErrStockExhausted
		}
		return false, err
	}
	return applied, nil
}
