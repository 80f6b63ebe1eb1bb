package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/viveroverde/vivero/internal/config"
	"github.com/viveroverde/vivero/internal/gateway/domain"
	"go.uber.org/zap"
)

type httpClient struct {
	baseURL     string
	accessToken string
	client      *http.Client
	log         *zap.Logger
}

// NewClient builds the HTTP gateway client from application configuration.
func NewClient(cfg config.Config, log *zap.Logger) domain.Client {
	timeout := cfg.GatewayTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.GatewayBaseURL), "/"),
		accessToken: strings.TrimSpace(cfg.GatewayAccessToken),
		client:      &http.Client{Timeout: timeout},
		log:         log.Named("gateway.client"),
	}
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	PaymentMethodID   string      `json:"payment_method_id"`
	PaymentTypeID     string      `json:"payment_type_id"`
	TransactionAmount float64     `json:"transaction_amount"`
	DateApproved      string      `json:"date_approved"`
	ExternalReference string      `json:"external_reference"`
	ReceiptURL        string      `json:"receipt_url"`
	LiveMode          bool        `json:"live_mode"`
	TestPayment       bool        `json:"test_payment"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
	Order struct {
		ID json.Number `json:"id"`
	} `json:"order"`
}

func (c *httpClient) FetchPaymentInfo(ctx context.Context, paymentID string) (domain.PaymentInfo, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.PaymentInfo{}, err
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", zap.String("payment_id", paymentID), zap.Error(err))
		return domain.PaymentInfo{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.PaymentInfo{}, domain.ErrPaymentNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.PaymentInfo{}, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return domain.PaymentInfo{}, fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}

	var payload paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PaymentInfo{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	info := domain.PaymentInfo{
		ID:                payload.ID.String(),
		Status:            domain.NormalizeStatus(payload.Status),
		RawStatus:         payload.Status,
		Method:            payload.PaymentMethodID,
		PaymentType:       payload.PaymentTypeID,
		TransactionAmount: int64(math.Round(payload.TransactionAmount * 100)),
		PayerEmail:        strings.TrimSpace(payload.Payer.Email),
		ExternalReference: strings.TrimSpace(payload.ExternalReference),
		MerchantOrderID:   payload.Order.ID.String(),
		ReceiptURL:        strings.TrimSpace(payload.ReceiptURL),
		LiveMode:          payload.LiveMode,
		TestFlag:          payload.TestPayment,
	}
	if info.ID == "" {
		info.ID = paymentID
	}
	if approvedAt := parseGatewayTime(payload.DateApproved); approvedAt != nil {
		info.ApprovedAt = approvedAt
	}
	return info, nil
}

func parseGatewayTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-07:00"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
