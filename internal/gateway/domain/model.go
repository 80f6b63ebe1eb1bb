package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// PaymentStatus is the normalized payment state reported by the gateway.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusApproved   PaymentStatus = "approved"
	StatusAuthorized PaymentStatus = "authorized"
	StatusInProcess  PaymentStatus = "in_process"
	StatusRejected   PaymentStatus = "rejected"
	StatusCancelled  PaymentStatus = "cancelled"
	StatusRefunded   PaymentStatus = "refunded"
)

var statusMapping = map[string]PaymentStatus{
	"pending":        StatusPending,
	"approved":       StatusApproved,
	"accredited":     StatusApproved,
	"authorized":     StatusAuthorized,
	"in_process":     StatusInProcess,
	"in_mediation":   StatusInProcess,
	"rejected":       StatusRejected,
	"cancelled":      StatusCancelled,
	"canceled":       StatusCancelled,
	"refunded":       StatusRefunded,
	"charged_back":   StatusRefunded,
	"partial_refund": StatusRefunded,
}

// NormalizeStatus maps a raw gateway status to the internal enum. Unknown
// statuses fall back to pending so a new gateway value never blocks
// processing.
func NormalizeStatus(raw string) PaymentStatus {
	if status, ok := statusMapping[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusPending
}

// PaymentInfo is the authoritative payment snapshot fetched from the
// gateway. It is folded into order fields, never persisted on its own.
type PaymentInfo struct {
	ID                string
	Status            PaymentStatus
	RawStatus         string
	Method            string
	PaymentType       string
	TransactionAmount int64
	PayerEmail        string
	ExternalReference string
	MerchantOrderID   string
	ReceiptURL        string
	ApprovedAt        *time.Time
	LiveMode          bool
	TestFlag          bool
}

// Client fetches authoritative payment details from the external gateway.
type Client interface {
	FetchPaymentInfo(ctx context.Context, paymentID string) (PaymentInfo, error)
}

var (
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrPaymentNotFound    = errors.New("payment_not_found")
)
