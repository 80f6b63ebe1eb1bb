package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// FulfillmentAction is an operator-initiated post-payment move.
type FulfillmentAction string

const (
	ActionShip           FulfillmentAction = "ship"
	ActionDeliver        FulfillmentAction = "deliver"
	ActionCompletePickup FulfillmentAction = "complete_pickup"
	ActionCancel         FulfillmentAction = "cancel"
)

// TargetStatus resolves the state an action moves an order into.
func (a FulfillmentAction) TargetStatus() (FulfillmentStatus, bool) {
	switch a {
	case ActionShip:
		return FulfillmentShipped, true
	case ActionDeliver:
		return FulfillmentDelivered, true
	case ActionCompletePickup:
		return FulfillmentPickupCompleted, true
	case ActionCancel:
		return FulfillmentCancelledByAdmin, true
	default:
		return "", false
	}
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	Advance(ctx context.Context, id snowflake.ID, action FulfillmentAction) (*Order, error)
}
