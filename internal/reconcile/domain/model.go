package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Notification is an inbound gateway webhook after transport-level parsing.
// PaymentID has already been extracted (body preferred over query).
type Notification struct {
	Topic     string
	PaymentID string
}

// IsPayment reports whether the notification concerns a payment. Other
// topics (merchant-order pings and the like) are acknowledged and dropped.
func (n Notification) IsPayment() bool {
	switch n.Topic {
	case "payment", "payment.created", "payment.updated":
		return true
	default:
		return false
	}
}

// Outcome is the status string acknowledged back to the gateway.
type Outcome string

const (
	OutcomeProcessed          Outcome = "processed"
	OutcomeAlreadyProcessed   Outcome = "already_processed"
	OutcomeAlreadyProcessing  Outcome = "already_processing"
	OutcomeNotProcessed       Outcome = "not_processed"
	OutcomeDuplicatePaymentID Outcome = "duplicate_payment_id"
	OutcomeAcknowledged       Outcome = "acknowledged"
)

// Result is the per-delivery reconciliation verdict. Business failures are
// folded into Detail; the HTTP layer always acknowledges with 200.
type Result struct {
	Outcome Outcome       `json:"status"`
	Detail  string        `json:"detail,omitempty"`
	OrderID *snowflake.ID `json:"order_id,omitempty"`
}

// Service is the webhook endpoint's core control flow.
type Service interface {
	Process(ctx context.Context, notification Notification) Result
}
