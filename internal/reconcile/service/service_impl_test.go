package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	checkoutdomain "github.com/viveroverde/vivero/internal/checkout/domain"
	checkoutrepo "github.com/viveroverde/vivero/internal/checkout/repository"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/config"
	gatewaydomain "github.com/viveroverde/vivero/internal/gateway/domain"
	"github.com/viveroverde/vivero/internal/idempotency"
	inventorydomain "github.com/viveroverde/vivero/internal/inventory/domain"
	inventoryrepo "github.com/viveroverde/vivero/internal/inventory/repository"
	inventoryservice "github.com/viveroverde/vivero/internal/inventory/service"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
	orderrepo "github.com/viveroverde/vivero/internal/order/repository"
	"github.com/viveroverde/vivero/internal/reconcile/domain"
	reconcileservice "github.com/viveroverde/vivero/internal/reconcile/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]gatewaydomain.PaymentInfo
	calls    int
}

func (f *fakeGateway) FetchPaymentInfo(ctx context.Context, paymentID string) (gatewaydomain.PaymentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	info, ok := f.payments[paymentID]
	if !ok {
		return gatewaydomain.PaymentInfo{}, gatewaydomain.ErrPaymentNotFound
	}
	return info, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// openGuard admits everything; individual tests opt into the real guard.
type openGuard struct{}

func (openGuard) TryBegin(_ context.Context, paymentID string) bool { return paymentID != "" }

type harness struct {
	db           *gorm.DB
	node         *snowflake.Node
	clk          *clock.FakeClock
	gw           *fakeGateway
	svc          domain.Service
	orderRepo    orderdomain.Repository
	checkoutRepo checkoutdomain.Repository
	invRepo      inventorydomain.Repository
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE orders (
			id BIGINT PRIMARY KEY,
			external_reference TEXT NOT NULL,
			payment_id TEXT,
			payment_status TEXT NOT NULL,
			gateway_status TEXT,
			fulfillment_status TEXT NOT NULL,
			shipping_method TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			customer_name TEXT,
			customer_email TEXT,
			customer_phone TEXT,
			shipping_address TEXT,
			payment_method TEXT,
			payer_email TEXT,
			merchant_order_id TEXT,
			receipt_url TEXT,
			approved_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_orders_external_reference ON orders(external_reference)`,
		`CREATE UNIQUE INDEX ux_orders_payment_id ON orders(payment_id) WHERE payment_id IS NOT NULL`,
		`CREATE TABLE order_items (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			product_name TEXT NOT NULL,
			product_image TEXT,
			quantity INTEGER NOT NULL,
			unit_price BIGINT NOT NULL,
			subtotal BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT,
			image TEXT,
			price BIGINT NOT NULL,
			stock INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE stock_movements (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_stock_movements_order_product ON stock_movements(order_id, product_id)`,
		`CREATE TABLE staged_checkouts (
			id BIGINT PRIMARY KEY,
			external_reference TEXT NOT NULL,
			items TEXT NOT NULL,
			shipping_method TEXT NOT NULL,
			customer_name TEXT,
			customer_email TEXT,
			customer_phone TEXT,
			shipping_address TEXT,
			consumed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_staged_checkouts_external_reference ON staged_checkouts(external_reference)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newHarness(t *testing.T, guard idempotency.Guard) *harness {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(13)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	gw := &fakeGateway{payments: map[string]gatewaydomain.PaymentInfo{}}

	invRepo := inventoryrepo.Provide()
	inventorySvc := inventoryservice.NewService(inventoryservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     invRepo,
		AuditSvc: noopAuditService{},
	})

	oRepo := orderrepo.Provide()
	cRepo := checkoutrepo.Provide()
	svc := reconcileservice.NewService(reconcileservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Guard:         guard,
		GatewayClient: gw,
		Heuristics:    config.NewStaticHeuristics(config.DefaultClassifierHeuristics()),
		OrderRepo:     oRepo,
		CheckoutRepo:  cRepo,
		InventorySvc:  inventorySvc,
		AuditSvc:      noopAuditService{},
	})

	return &harness{
		db:           db,
		node:         node,
		clk:          clk,
		gw:           gw,
		svc:          svc,
		orderRepo:    oRepo,
		checkoutRepo: cRepo,
		invRepo:      invRepo,
	}
}

func (h *harness) seedProduct(t *testing.T, name string, price int64, stock int) inventorydomain.Product {
	t.Helper()
	now := h.clk.Now()
	product := inventorydomain.Product{
		ID:        h.node.Generate(),
		Name:      name,
		Slug:      fmt.Sprintf("%s-%d", name, now.UnixNano()),
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.invRepo.Insert(context.Background(), h.db, &product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func (h *harness) stage(t *testing.T, ref string, method orderdomain.ShippingMethod, items ...checkoutdomain.StagedItem) {
	t.Helper()
	payload, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal items: %v", err)
	}
	staged := &checkoutdomain.StagedCheckout{
		ID:                h.node.Generate(),
		ExternalReference: ref,
		Items:             datatypes.JSON(payload),
		ShippingMethod:    method,
		CustomerName:      "Ana Flores",
		CustomerEmail:     "ana@example.com",
		CreatedAt:         h.clk.Now(),
	}
	if err := h.checkoutRepo.Insert(context.Background(), h.db, staged); err != nil {
		t.Fatalf("stage checkout: %v", err)
	}
}

func (h *harness) registerPayment(paymentID string, info gatewaydomain.PaymentInfo) {
	if info.ID == "" {
		info.ID = paymentID
	}
	h.gw.mu.Lock()
	h.gw.payments[paymentID] = info
	h.gw.mu.Unlock()
}

func (h *harness) stockOf(t *testing.T, id snowflake.ID) int {
	t.Helper()
	var stock int
	if err := h.db.Raw(`SELECT stock FROM products WHERE id = ?`, id).Scan(&stock).Error; err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}

func (h *harness) orderCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := h.db.Raw(`SELECT COUNT(*) FROM orders`).Scan(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	return count
}

func paymentNotification(paymentID string) domain.Notification {
	return domain.Notification{Topic: "payment", PaymentID: paymentID}
}

func TestApprovedPaymentMaterializesAndDecrements(t *testing.T) {
	h := newHarness(t, openGuard{})
	fern := h.seedProduct(t, "helecho", 4990, 5)

	const ref = "ORD-A"
	h.stage(t, ref, orderdomain.ShippingDelivery, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 2})

	approvedAt := h.clk.Now().Add(-time.Minute)
	h.registerPayment("PAY-1", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		Method:            "visa",
		TransactionAmount: 9980,
		PayerEmail:        "ana@example.com",
		ExternalReference: ref,
		ReceiptURL:        "https://gateway.example/receipts/PAY-1",
		ApprovedAt:        &approvedAt,
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-1"))
	if result.Outcome != domain.OutcomeProcessed {
		t.Fatalf("expected processed, got %s (%s)", result.Outcome, result.Detail)
	}

	order, err := h.orderRepo.FindByExternalRef(context.Background(), h.db, ref)
	if err != nil || order == nil {
		t.Fatalf("expected materialized order, err=%v", err)
	}
	if order.PaymentStatus != orderdomain.PaymentApproved {
		t.Fatalf("expected approved, got %s", order.PaymentStatus)
	}
	if order.FulfillmentStatus != orderdomain.FulfillmentAwaitingShipment {
		t.Fatalf("expected awaiting_shipment, got %s", order.FulfillmentStatus)
	}
	if order.PaymentID == nil || *order.PaymentID != "PAY-1" {
		t.Fatalf("expected payment id PAY-1, got %v", order.PaymentID)
	}
	if order.PaymentMethod == nil || *order.PaymentMethod != "visa" {
		t.Fatalf("expected payment method persisted, got %v", order.PaymentMethod)
	}
	if order.ReceiptURL == nil || *order.ReceiptURL == "" {
		t.Fatalf("expected receipt url persisted")
	}
	if order.TotalAmount != 9980 {
		t.Fatalf("expected total 9980, got %d", order.TotalAmount)
	}
	if got := h.stockOf(t, fern.ID); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}

	staged, err := h.checkoutRepo.FindByExternalRef(context.Background(), h.db, ref)
	if err != nil {
		t.Fatalf("find staged: %v", err)
	}
	if staged.ConsumedAt == nil {
		t.Fatalf("expected staged data marked consumed")
	}
}

func TestApprovedPickupBranchesToAwaitingPickup(t *testing.T) {
	h := newHarness(t, openGuard{})
	fern := h.seedProduct(t, "helecho", 4990, 5)

	const ref = "ORD-PICKUP"
	h.stage(t, ref, orderdomain.ShippingPickup, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 1})
	h.registerPayment("PAY-2", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		ExternalReference: ref,
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-2"))
	if result.Outcome != domain.OutcomeProcessed {
		t.Fatalf("expected processed, got %s", result.Outcome)
	}

	order, _ := h.orderRepo.FindByExternalRef(context.Background(), h.db, ref)
	if order.FulfillmentStatus != orderdomain.FulfillmentAwaitingPickup {
		t.Fatalf("expected awaiting_pickup, got %s", order.FulfillmentStatus)
	}
}

func TestRedeliveryAfterSuccessIsAlreadyProcessed(t *testing.T) {
	h := newHarness(t, openGuard{})
	fern := h.seedProduct(t, "helecho", 4990, 5)

	const ref = "ORD-REDELIVER"
	h.stage(t, ref, orderdomain.ShippingDelivery, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 2})
	h.registerPayment("PAY-3", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		ExternalReference: ref,
		LiveMode:          true,
	})

	first := h.svc.Process(context.Background(), paymentNotification("PAY-3"))
	if first.Outcome != domain.OutcomeProcessed {
		t.Fatalf("expected processed, got %s", first.Outcome)
	}
	fetchesAfterFirst := h.gw.callCount()

	second := h.svc.Process(context.Background(), paymentNotification("PAY-3"))
	if second.Outcome != domain.OutcomeAlreadyProcessed {
		t.Fatalf("expected already_processed, got %s", second.Outcome)
	}
	if h.gw.callCount() != fetchesAfterFirst {
		t.Fatalf("expected no gateway fetch on redelivery")
	}
	if got := h.stockOf(t, fern.ID); got != 3 {
		t.Fatalf("expected stock to stay 3, got %d", got)
	}
	if got := h.orderCount(t); got != 1 {
		t.Fatalf("expected one order, got %d", got)
	}
}

func TestRejectedPaymentLeavesFulfillmentAndStock(t *testing.T) {
	h := newHarness(t, openGuard{})
	fern := h.seedProduct(t, "helecho", 4990, 5)

	const ref = "ORD-REJECTED"
	h.stage(t, ref, orderdomain.ShippingDelivery, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 2})
	h.registerPayment("PAY-4", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusRejected,
		RawStatus:         "rejected",
		ExternalReference: ref,
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-4"))
	if result.Outcome != domain.OutcomeProcessed {
		t.Fatalf("expected processed, got %s", result.Outcome)
	}

	order, _ := h.orderRepo.FindByExternalRef(context.Background(), h.db, ref)
	if order.PaymentStatus != orderdomain.PaymentRejected {
		t.Fatalf("expected rejected, got %s", order.PaymentStatus)
	}
	if order.FulfillmentStatus != orderdomain.FulfillmentNone {
		t.Fatalf("expected fulfillment none, got %s", order.FulfillmentStatus)
	}
	if got := h.stockOf(t, fern.ID); got != 5 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
}

func TestInsufficientStockBlocksApproval(t *testing.T) {
	h := newHarness(t, openGuard{})
	fern := h.seedProduct(t, "helecho", 4990, 5)

	const ref = "ORD-SHORT"
	h.stage(t, ref, orderdomain.ShippingDelivery, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 10})
	h.registerPayment("PAY-5", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		ExternalReference: ref,
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-5"))
	if result.Outcome != domain.OutcomeNotProcessed || result.Detail != "insufficient_stock" {
		t.Fatalf("expected not_processed/insufficient_stock, got %s/%s", result.Outcome, result.Detail)
	}

	order, _ := h.orderRepo.FindByExternalRef(context.Background(), h.db, ref)
	if order.PaymentStatus == orderdomain.PaymentApproved {
		t.Fatalf("expected order to stay unapproved")
	}
	if order.FulfillmentStatus != orderdomain.FulfillmentNone {
		t.Fatalf("expected fulfillment none, got %s", order.FulfillmentStatus)
	}
	if got := h.stockOf(t, fern.ID); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}

	// Once stock frees up, a retried delivery approves.
	if err := h.db.Exec(`UPDATE products SET stock = 12 WHERE id = ?`, fern.ID).Error; err != nil {
		t.Fatalf("restock: %v", err)
	}
	retry := h.svc.Process(context.Background(), paymentNotification("PAY-5"))
	if retry.Outcome != domain.OutcomeProcessed {
		t.Fatalf("expected retry to process, got %s (%s)", retry.Outcome, retry.Detail)
	}
	order, _ = h.orderRepo.FindByExternalRef(context.Background(), h.db, ref)
	if order.PaymentStatus != orderdomain.PaymentApproved {
		t.Fatalf("expected approved after restock, got %s", order.PaymentStatus)
	}
	if got := h.stockOf(t, fern.ID); got != 2 {
		t.Fatalf("expected stock 2 after decrement, got %d", got)
	}
}

func TestNonPaymentTopicIsAcknowledgedWithoutFetch(t *testing.T) {
	h := newHarness(t, openGuard{})

	result := h.svc.Process(context.Background(), domain.Notification{Topic: "merchant_order", PaymentID: "123"})
	if result.Outcome != domain.OutcomeAcknowledged {
		t.Fatalf("expected acknowledged, got %s", result.Outcome)
	}
	if h.gw.callCount() != 0 {
		t.Fatalf("expected no gateway fetch for non-payment topic")
	}
	if got := h.orderCount(t); got != 0 {
		t.Fatalf("expected no orders, got %d", got)
	}
}

func TestMissingStagedDataIsNotProcessed(t *testing.T) {
	h := newHarness(t, openGuard{})
	h.registerPayment("PAY-6", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		ExternalReference: "ORD-UNKNOWN",
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-6"))
	if result.Outcome != domain.OutcomeNotProcessed {
		t.Fatalf("expected not_processed, got %s", result.Outcome)
	}
	if result.Detail != checkoutdomain.ErrStagedDataNotFound.Error() {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestGatewayUnknownPaymentIsAcknowledged(t *testing.T) {
	h := newHarness(t, openGuard{})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-MISSING"))
	if result.Outcome != domain.OutcomeAcknowledged {
		t.Fatalf("expected acknowledged, got %s", result.Outcome)
	}
	if result.Detail == "" {
		t.Fatalf("expected error detail")
	}
}

func TestDuplicatePaymentIDIsDropped(t *testing.T) {
	h := newHarness(t, openGuard{})

	now := h.clk.Now()
	owner := "PAY-OWNED"
	orderA := &orderdomain.Order{
		ID:                h.node.Generate(),
		ExternalReference: "ORD-OWNER",
		PaymentID:         &owner,
		PaymentStatus:     orderdomain.PaymentInProcess,
		FulfillmentStatus: orderdomain.FulfillmentNone,
		ShippingMethod:    orderdomain.ShippingDelivery,
		TotalAmount:       1000,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	other := "PAY-OTHER"
	orderB := &orderdomain.Order{
		ID:                h.node.Generate(),
		ExternalReference: "ORD-VICTIM",
		PaymentID:         &other,
		PaymentStatus:     orderdomain.PaymentPending,
		FulfillmentStatus: orderdomain.FulfillmentNone,
		ShippingMethod:    orderdomain.ShippingDelivery,
		TotalAmount:       2000,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, o := range []*orderdomain.Order{orderA, orderB} {
		if err := h.orderRepo.InsertWithItems(context.Background(), h.db, o, nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// The gateway reports the canonical id PAY-OWNED for this delivery,
	// while the external reference resolves to order B which already
	// carries a different payment.
	h.registerPayment("PAY-OWNED-ALIAS", gatewaydomain.PaymentInfo{
		ID:                "PAY-OWNED",
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		ExternalReference: "ORD-VICTIM",
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-OWNED-ALIAS"))
	if result.Outcome != domain.OutcomeDuplicatePaymentID {
		t.Fatalf("expected duplicate_payment_id, got %s (%s)", result.Outcome, result.Detail)
	}

	// Order B's own payment fields are untouched by this delivery.
	found, _ := h.orderRepo.FindByID(context.Background(), h.db, orderB.ID)
	if found.PaymentID == nil || *found.PaymentID != "PAY-OTHER" {
		t.Fatalf("expected order B to keep PAY-OTHER, got %v", found.PaymentID)
	}
	if found.PaymentStatus != orderdomain.PaymentPending {
		t.Fatalf("expected order B status unchanged, got %s", found.PaymentStatus)
	}
}

func TestPaymentIDUniqueConstraintRace(t *testing.T) {
	h := newHarness(t, openGuard{})
	fern := h.seedProduct(t, "helecho", 4990, 5)

	now := h.clk.Now()
	owner := "PAY-9"
	orderA := &orderdomain.Order{
		ID:                h.node.Generate(),
		ExternalReference: "ORD-FIRSTCLAIM",
		PaymentID:         &owner,
		PaymentStatus:     orderdomain.PaymentInProcess,
		FulfillmentStatus: orderdomain.FulfillmentNone,
		ShippingMethod:    orderdomain.ShippingDelivery,
		TotalAmount:       1000,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := h.orderRepo.InsertWithItems(context.Background(), h.db, orderA, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const ref = "ORD-SECONDCLAIM"
	h.stage(t, ref, orderdomain.ShippingDelivery, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 1})

	// The delivery's data id differs from the canonical payment id, so the
	// durable lookup misses and the unique index is the final arbiter.
	h.registerPayment("PAY-9-ALIAS", gatewaydomain.PaymentInfo{
		ID:                "PAY-9",
		Status:            gatewaydomain.StatusPending,
		RawStatus:         "pending",
		ExternalReference: ref,
		LiveMode:          true,
	})

	result := h.svc.Process(context.Background(), paymentNotification("PAY-9-ALIAS"))
	if result.Outcome != domain.OutcomeDuplicatePaymentID {
		t.Fatalf("expected duplicate_payment_id, got %s (%s)", result.Outcome, result.Detail)
	}
	if result.Detail != "storage_conflict" {
		t.Fatalf("expected storage_conflict detail, got %q", result.Detail)
	}
}

func TestGuardBlocksConcurrentDeliveries(t *testing.T) {
	guard := idempotency.NewLocalGuard(clock.NewFakeClock(time.Now().UTC()), 4*time.Second)
	h := newHarness(t, guard)
	fern := h.seedProduct(t, "helecho", 4990, 5)

	const ref = "ORD-CONCURRENT"
	h.stage(t, ref, orderdomain.ShippingDelivery, checkoutdomain.StagedItem{ProductID: fern.ID, Quantity: 2})
	h.registerPayment("PAY-7", gatewaydomain.PaymentInfo{
		Status:            gatewaydomain.StatusApproved,
		RawStatus:         "approved",
		ExternalReference: ref,
		LiveMode:          true,
	})

	const deliveries = 8
	results := make([]domain.Result, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.svc.Process(context.Background(), paymentNotification("PAY-7"))
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, result := range results {
		switch result.Outcome {
		case domain.OutcomeProcessed:
			processed++
		case domain.OutcomeAlreadyProcessing, domain.OutcomeAlreadyProcessed:
		default:
			t.Fatalf("unexpected outcome %s (%s)", result.Outcome, result.Detail)
		}
	}
	if processed != 1 {
		t.Fatalf("expected exactly one processed delivery, got %d", processed)
	}
	if got := h.orderCount(t); got != 1 {
		t.Fatalf("expected one order, got %d", got)
	}
	if got := h.stockOf(t, fern.ID); got != 3 {
		t.Fatalf("expected stock decremented once, got %d", got)
	}
}

func TestEmptyPaymentIDIsRejectedByGuard(t *testing.T) {
	h := newHarness(t, openGuard{})

	result := h.svc.Process(context.Background(), paymentNotification(""))
	if result.Outcome != domain.OutcomeAlreadyProcessing {
		t.Fatalf("expected guard to refuse empty id, got %s", result.Outcome)
	}
	if h.gw.callCount() != 0 {
		t.Fatalf("expected no gateway fetch")
	}
}
