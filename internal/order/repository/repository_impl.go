package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viveroverde/vivero/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, external_reference, payment_id, payment_status, gateway_status,
	fulfillment_status, shipping_method, total_amount,
	customer_name, customer_email, customer_phone, shipping_address,
	payment_method, payer_email, merchant_order_id, receipt_url, approved_at,
	created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE external_reference = ? LIMIT 1`,
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

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE payment_id = ? LIMIT 1`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// InsertWithItems creates the order row and its items in one transaction so
// a failed item insert never leaves a partially populated order behind. A
// unique violation on external_reference propagates to the caller, which
// treats it as "a concurrent delivery won the race".
func (r *repo) InsertWithItems(ctx context.Context, db *gorm.DB, order *domain.Order, items []domain.OrderItem) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`INSERT INTO orders (
				id, external_reference, payment_id, payment_status, gateway_status,
				fulfillment_status, shipping_method, total_amount,
				customer_name, customer_email, customer_phone, shipping_address,
				payment_method, payer_email, merchant_order_id, receipt_url, approved_at,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID,
			order.ExternalReference,
			order.PaymentID,
			order.PaymentStatus,
			order.GatewayStatus,
			order.FulfillmentStatus,
			order.ShippingMethod,
			order.TotalAmount,
			order.CustomerName,
			order.CustomerEmail,
			order.CustomerPhone,
			order.ShippingAddress,
			order.PaymentMethod,
			order.PayerEmail,
			order.MerchantOrderID,
			order.ReceiptURL,
			order.ApprovedAt,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if res.Error != nil {
			return res.Error
		}

		for i := range items {
			item := &items[i]
			item.OrderID = order.ID
			res := tx.Exec(
				`INSERT INTO order_items (
					id, order_id, product_id, product_name, product_image,
					quantity, unit_price, subtotal, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID,
				item.OrderID,
				item.ProductID,
				item.ProductName,
				item.ProductImage,
				item.Quantity,
				item.UnitPrice,
				item.Subtotal,
				item.CreatedAt,
			)
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
}

// UpdatePaymentFields writes the latest gateway truth onto a non-final
// order. Empty incoming values keep the stored ones. Returns false when the
// order is already in a final payment status.
func (r *repo) UpdatePaymentFields(ctx context.Context, db *gorm.DB, orderID snowflake.ID, fields domain.PaymentFields) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET
			payment_id = COALESCE(payment_id, NULLIF(?, '')),
			gateway_status = CASE WHEN ? != '' THEN ? ELSE gateway_status END,
			payment_status = CASE WHEN ? != '' THEN ? ELSE payment_status END,
			payment_method = COALESCE(NULLIF(?, ''), payment_method),
			payer_email = COALESCE(NULLIF(?, ''), payer_email),
			merchant_order_id = COALESCE(NULLIF(?, ''), merchant_order_id),
			receipt_url = COALESCE(NULLIF(?, ''), receipt_url),
			approved_at = COALESCE(?, approved_at),
			updated_at = ?
		WHERE id = ?
		  AND payment_status NOT IN ('approved', 'rejected', 'cancelled', 'refunded')`,
		fields.PaymentID,
		fields.GatewayStatus, fields.GatewayStatus,
		string(fields.PaymentStatus), string(fields.PaymentStatus),
		fields.Method,
		fields.PayerEmail,
		fields.MerchantOrderID,
		fields.ReceiptURL,
		fields.ApprovedAt,
		fields.UpdatedAt,
		orderID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ApproveAndAdvanceFulfillment commits approval and the single forward
// fulfillment transition in one atomic statement. Returns false when the
// order was already final or its fulfillment already advanced, which a
// concurrent delivery may legitimately have done first.
func (r *repo) ApproveAndAdvanceFulfillment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, approvedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET
			payment_status = 'approved',
			fulfillment_status = CASE WHEN shipping_method = 'pickup'
				THEN 'awaiting_pickup' ELSE 'awaiting_shipment' END,
			approved_at = COALESCE(approved_at, ?),
			updated_at = ?
		WHERE id = ?
		  AND payment_status NOT IN ('approved', 'rejected', 'cancelled', 'refunded')
		  AND fulfillment_status = 'none'`,
		approvedAt,
		approvedAt,
		orderID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AdvanceFulfillment performs a post-approval transition, gated on the
// current state so stale or concurrent actions fail cleanly.
func (r *repo) AdvanceFulfillment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, from, to domain.FulfillmentStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET fulfillment_status = ?, updated_at = ?
		WHERE id = ?
		  AND payment_status = 'approved'
		  AND fulfillment_status = ?`,
		to,
		now,
		orderID,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, product_id, product_name, product_image,
			quantity, unit_price, subtotal, created_at
		 FROM order_items WHERE order_id = ? ORDER BY id`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
