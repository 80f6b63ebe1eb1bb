package domain

import "errors"

var (
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrDuplicatePaymentID     = errors.New("duplicate_payment_id")
	ErrIllegalTransition      = errors.New("illegal_transition")
	ErrInvalidShippingMethod  = errors.New("invalid_shipping_method")
	ErrInvalidItems           = errors.New("invalid_items")
	ErrInvalidFulfillmentStep = errors.New("invalid_fulfillment_action")
)
