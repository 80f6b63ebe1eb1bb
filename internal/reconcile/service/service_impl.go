package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	checkoutdomain "github.com/viveroverde/vivero/internal/checkout/domain"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/config"
	"github.com/viveroverde/vivero/internal/gateway"
	gatewaydomain "github.com/viveroverde/vivero/internal/gateway/domain"
	"github.com/viveroverde/vivero/internal/idempotency"
	inventorydomain "github.com/viveroverde/vivero/internal/inventory/domain"
	"github.com/viveroverde/vivero/internal/observability/metrics"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
	"github.com/viveroverde/vivero/internal/reconcile/domain"
	pkgdb "github.com/viveroverde/vivero/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Guard         idempotency.Guard
	GatewayClient gatewaydomain.Client
	Heuristics    *config.HeuristicsHolder
	OrderRepo     orderdomain.Repository
	CheckoutRepo  checkoutdomain.Repository
	InventorySvc  inventorydomain.Service
	AuditSvc      auditdomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	guard         idempotency.Guard
	gatewayClient gatewaydomain.Client
	heuristics    *config.HeuristicsHolder
	orderRepo     orderdomain.Repository
	checkoutRepo  checkoutdomain.Repository
	inventorySvc  inventorydomain.Service
	auditSvc      auditdomain.Service
	metrics       *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &service{
		db:            p.DB,
		log:           p.Log.Named("reconcile.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		guard:         p.Guard,
		gatewayClient: p.GatewayClient,
		heuristics:    p.Heuristics,
		orderRepo:     p.OrderRepo,
		checkoutRepo:  p.CheckoutRepo,
		inventorySvc:  p.InventorySvc,
		auditSvc:      p.AuditSvc,
		metrics:       p.Metrics,
	}
}

// Process reconciles one webhook delivery end to end. Every branch is
// acknowledged; business failures surface only in the result detail and
// the audit trail, never as a transport error.
func (s *service) Process(ctx context.Context, notification domain.Notification) domain.Result {
	if !notification.IsPayment() {
		return s.conclude(ctx, notification, domain.Result{
			Outcome: domain.OutcomeAcknowledged,
			Detail:  "ignored_topic",
		}, nil)
	}

	paymentID := notification.PaymentID

	if !s.guard.TryBegin(ctx, paymentID) {
		return s.conclude(ctx, notification, domain.Result{
			Outcome: domain.OutcomeAlreadyProcessing,
		}, nil)
	}

	existing, err := s.orderRepo.FindByPaymentID(ctx, s.db, paymentID)
	if err != nil {
		return s.acknowledgeError(ctx, notification, nil, err)
	}
	if existing != nil && existing.PaymentStatus.Final() {
		return s.conclude(ctx, notification, domain.Result{
			Outcome: domain.OutcomeAlreadyProcessed,
			OrderID: &existing.ID,
		}, nil)
	}

	info, err := s.gatewayClient.FetchPaymentInfo(ctx, paymentID)
	if err != nil {
		s.metrics.RecordGatewayFailure(ctx, gatewayFailureReason(err))
		return s.acknowledgeError(ctx, notification, nil, err)
	}

	order := existing
	if order == nil {
		order, err = s.materialize(ctx, info)
		if err != nil {
			if errors.Is(err, checkoutdomain.ErrStagedDataNotFound) || errors.Is(err, inventorydomain.ErrProductNotFound) {
				return s.conclude(ctx, notification, domain.Result{
					Outcome: domain.OutcomeNotProcessed,
					Detail:  err.Error(),
				}, nil)
			}
			return s.acknowledgeError(ctx, notification, nil, err)
		}
	}

	if order.PaymentID != nil && *order.PaymentID != info.ID {
		owner, err := s.orderRepo.FindByPaymentID(ctx, s.db, info.ID)
		if err != nil {
			return s.acknowledgeError(ctx, notification, order, err)
		}
		if owner != nil && owner.ID != order.ID {
			return s.conclude(ctx, notification, domain.Result{
				Outcome: domain.OutcomeDuplicatePaymentID,
				OrderID: &order.ID,
			}, order)
		}
	}

	now := s.clock.Now()
	fields := orderdomain.PaymentFields{
		PaymentID:       info.ID,
		GatewayStatus:   info.RawStatus,
		PaymentStatus:   preApprovalStatus(info.Status),
		Method:          info.Method,
		PayerEmail:      info.PayerEmail,
		MerchantOrderID: info.MerchantOrderID,
		ReceiptURL:      info.ReceiptURL,
		ApprovedAt:      info.ApprovedAt,
		UpdatedAt:       now,
	}
	updated, err := s.orderRepo.UpdatePaymentFields(ctx, s.db, order.ID, fields)
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Another order claimed this payment id first.
			return s.conclude(ctx, notification, domain.Result{
				Outcome: domain.OutcomeDuplicatePaymentID,
				Detail:  "storage_conflict",
				OrderID: &order.ID,
			}, order)
		}
		return s.acknowledgeError(ctx, notification, order, err)
	}
	if !updated {
		// A concurrent delivery finalized the order between our lookup
		// and the write.
		return s.conclude(ctx, notification, domain.Result{
			Outcome: domain.OutcomeAlreadyProcessed,
			OrderID: &order.ID,
		}, order)
	}

	result := domain.Result{Outcome: domain.OutcomeProcessed, OrderID: &order.ID}

	if info.Status == gatewaydomain.StatusApproved {
		result = s.approve(ctx, notification, order, info)
	}

	return s.concludeWithInfo(ctx, notification, result, order, info)
}

// approve runs stock validation, commits approval with the fulfillment
// branch, then decrements stock per item. Validation failure leaves the
// order in its pre-approval state for a later retry.
func (s *service) approve(ctx context.Context, notification domain.Notification, order *orderdomain.Order, info gatewaydomain.PaymentInfo) domain.Result {
	items, err := s.orderRepo.ListItems(ctx, s.db, order.ID)
	if err != nil {
		return domain.Result{Outcome: domain.OutcomeAcknowledged, Detail: err.Error(), OrderID: &order.ID}
	}
	demands := demandsOf(items)

	if err := s.inventorySvc.ValidateAvailability(ctx, demands); err != nil {
		var short *inventorydomain.InsufficientStockError
		if errors.As(err, &short) {
			s.metrics.RecordStockShortage(ctx)
			s.auditShortage(ctx, order.ID, short)
			return domain.Result{
				Outcome: domain.OutcomeNotProcessed,
				Detail:  "insufficient_stock",
				OrderID: &order.ID,
			}
		}
		return domain.Result{Outcome: domain.OutcomeAcknowledged, Detail: err.Error(), OrderID: &order.ID}
	}

	approvedAt := s.clock.Now()
	if info.ApprovedAt != nil {
		approvedAt = *info.ApprovedAt
	}
	moved, err := s.orderRepo.ApproveAndAdvanceFulfillment(ctx, s.db, order.ID, approvedAt)
	if err != nil {
		return domain.Result{Outcome: domain.OutcomeAcknowledged, Detail: err.Error(), OrderID: &order.ID}
	}
	if !moved {
		return domain.Result{Outcome: domain.OutcomeAlreadyProcessed, OrderID: &order.ID}
	}

	decremented := s.inventorySvc.DecrementAll(ctx, order.ID, demands)
	if len(decremented.Failed) > 0 {
		// Approval stands; the shortfall is an operator backlog.
		s.log.Warn("stock decrement incomplete after approval",
			zap.String("order_id", order.ID.String()),
			zap.Int("failed_items", len(decremented.Failed)),
		)
	}

	return domain.Result{Outcome: domain.OutcomeProcessed, OrderID: &order.ID}
}

func (s *service) acknowledgeError(ctx context.Context, notification domain.Notification, order *orderdomain.Order, err error) domain.Result {
	result := domain.Result{Outcome: domain.OutcomeAcknowledged, Detail: err.Error()}
	if order != nil {
		result.OrderID = &order.ID
	}
	return s.conclude(ctx, notification, result, order)
}

func (s *service) conclude(ctx context.Context, notification domain.Notification, result domain.Result, order *orderdomain.Order) domain.Result {
	return s.concludeWithInfo(ctx, notification, result, order, gatewaydomain.PaymentInfo{})
}

// concludeWithInfo emits the per-delivery audit record and metrics. The
// test/real classification rides along as a tag; it never changes the
// outcome.
func (s *service) concludeWithInfo(ctx context.Context, notification domain.Notification, result domain.Result, order *orderdomain.Order, info gatewaydomain.PaymentInfo) domain.Result {
	metadata := map[string]any{
		"topic":      notification.Topic,
		"payment_id": notification.PaymentID,
		"outcome":    string(result.Outcome),
	}
	if result.Detail != "" {
		metadata["detail"] = result.Detail
	}
	if info.ID != "" {
		metadata["gateway_status"] = info.RawStatus
		metadata["classification"] = string(gateway.ClassifyPayment(info, s.heuristics.Current()))
	}

	var targetID *string
	if order != nil {
		id := order.ID.String()
		targetID = &id
	} else if result.OrderID != nil {
		id := result.OrderID.String()
		targetID = &id
	}

	if err := s.auditSvc.AuditLog(ctx, "webhook.reconciled", "order", targetID, metadata); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	s.metrics.RecordWebhookNotification(ctx, notification.Topic, string(result.Outcome))

	return result
}

func (s *service) auditShortage(ctx context.Context, orderID snowflake.ID, short *inventorydomain.InsufficientStockError) {
	shortages := make([]map[string]any, 0, len(short.Shortages))
	for _, item := range short.Shortages {
		shortages = append(shortages, map[string]any{
			"product_id": item.ProductID.String(),
			"requested":  item.Requested,
			"available":  item.Available,
		})
	}
	targetID := orderID.String()
	if err := s.auditSvc.AuditLog(ctx, "webhook.approval_blocked", "order", &targetID, map[string]any{
		"reason":    "insufficient_stock",
		"shortages": shortages,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
}

// preApprovalStatus maps the gateway status to the order status persisted
// on every delivery. Approval itself is withheld until stock validation
// passes, so an approved payment writes no status change here.
func preApprovalStatus(status gatewaydomain.PaymentStatus) orderdomain.PaymentStatus {
	switch status {
	case gatewaydomain.StatusApproved:
		return ""
	case gatewaydomain.StatusAuthorized, gatewaydomain.StatusInProcess:
		return orderdomain.PaymentInProcess
	case gatewaydomain.StatusRejected:
		return orderdomain.PaymentRejected
	case gatewaydomain.StatusCancelled:
		return orderdomain.PaymentCancelled
	case gatewaydomain.StatusRefunded:
		return orderdomain.PaymentRefunded
	default:
		return orderdomain.PaymentPending
	}
}

func gatewayFailureReason(err error) string {
	switch {
	case errors.Is(err, gatewaydomain.ErrPaymentNotFound):
		return "payment_not_found"
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return "gateway_unavailable"
	default:
		return "unknown"
	}
}
