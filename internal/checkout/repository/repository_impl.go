package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viveroverde/vivero/internal/checkout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, staged *domain.StagedCheckout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO staged_checkouts (
			id, external_reference, items, shipping_method,
			customer_name, customer_email, customer_phone, shipping_address,
			consumed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		staged.ID,
		staged.ExternalReference,
		staged.Items,
		staged.ShippingMethod,
		staged.CustomerName,
		staged.CustomerEmail,
		staged.CustomerPhone,
		staged.ShippingAddress,
		staged.ConsumedAt,
		staged.CreatedAt,
	).Error
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*domain.StagedCheckout, error) {
	var item domain.StagedCheckout
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_reference, items, shipping_method,
			customer_name, customer_email, customer_phone, shipping_address,
			consumed_at, created_at
		 FROM staged_checkouts WHERE external_reference = ? LIMIT 1`,
		externalRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE staged_checkouts SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		now,
		id,
	).Error
}
