package domain

// PaymentStatus tracks where a payment stands from the order's point of
// view. Final statuses are never overwritten by a later webhook.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentInProcess PaymentStatus = "in_process"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentRefunded  PaymentStatus = "refunded"
)

// FinalPaymentStatuses are terminal for webhook purposes.
var FinalPaymentStatuses = []PaymentStatus{
	PaymentApproved,
	PaymentRejected,
	PaymentCancelled,
	PaymentRefunded,
}

func (s PaymentStatus) Final() bool {
	for _, final := range FinalPaymentStatuses {
		if s == final {
			return true
		}
	}
	return false
}

// FulfillmentStatus tracks post-payment logistics progress.
type FulfillmentStatus string

const (
	FulfillmentNone             FulfillmentStatus = "none"
	FulfillmentAwaitingShipment FulfillmentStatus = "awaiting_shipment"
	FulfillmentAwaitingPickup   FulfillmentStatus = "awaiting_pickup"
	FulfillmentShipped          FulfillmentStatus = "shipped"
	FulfillmentDelivered        FulfillmentStatus = "delivered"
	FulfillmentPickupCompleted  FulfillmentStatus = "pickup_completed"
	FulfillmentCancelledByAdmin FulfillmentStatus = "cancelled_by_admin"
)

// FulfillmentOnApproval returns the state an order enters the moment its
// payment is approved, branching on shipping method.
func FulfillmentOnApproval(method ShippingMethod) FulfillmentStatus {
	if method == ShippingPickup {
		return FulfillmentAwaitingPickup
	}
	return FulfillmentAwaitingShipment
}

var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentAwaitingShipment: {FulfillmentShipped, FulfillmentCancelledByAdmin},
	FulfillmentShipped:          {FulfillmentDelivered},
	FulfillmentAwaitingPickup:   {FulfillmentPickupCompleted, FulfillmentCancelledByAdmin},
}

// CanTransitionFulfillment reports whether the forward move is legal.
func CanTransitionFulfillment(from, to FulfillmentStatus) bool {
	for _, next := range fulfillmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
