package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reconciledomain "github.com/viveroverde/vivero/internal/reconcile/domain"
	"go.uber.org/zap"
)

// webhookEnvelope tolerates the gateway's inconsistent payload shapes: the
// discriminator arrives as type or topic, the payment id inside data.id or
// as a query parameter.
type webhookEnvelope struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// HandlePaymentWebhook is the gateway's entry point. Any outcome past input
// validation is acknowledged with 200 so the gateway does not retry storm;
// detail travels in the response body and the audit log.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: unreadable body", ErrInvalidRequest))
		return
	}

	var envelope webhookEnvelope
	if len(body) > 0 {
		// A malformed body is tolerated; query parameters may still
		// identify the notification.
		_ = json.Unmarshal(body, &envelope)
	}

	topic := firstNonEmpty(envelope.Topic, envelope.Type, c.Query("topic"), c.Query("type"))
	if topic == "" {
		topic = "payment"
	}

	// Body wins over query when both are present.
	dataID := strings.TrimSpace(envelope.Data.ID.String())
	if dataID == "" {
		dataID = firstNonEmpty(c.Query("data.id"), c.Query("id"))
	}
	if dataID == "" {
		AbortWithError(c, fmt.Errorf("%w: missing data id", ErrInvalidRequest))
		return
	}

	if s.cfg.WebhookSecret != "" {
		if ok, reason := s.verifySignature(c.GetHeader("x-signature"), dataID); !ok {
			s.obsMetrics.RecordInvalidSignature(c.Request.Context(), reason)
			s.log.Warn("webhook signature verification failed",
				zap.String("reason", reason),
				zap.String("data_id", dataID),
			)
			if s.cfg.WebhookRequireSignature {
				AbortWithError(c, fmt.Errorf("%w: invalid signature", ErrInvalidRequest))
				return
			}
		}
	}

	result := s.reconcileSvc.Process(c.Request.Context(), reconciledomain.Notification{
		Topic:     topic,
		PaymentID: dataID,
	})

	c.JSON(http.StatusOK, result)
}

// verifySignature checks the ts/v1 pair in the x-signature header against
// an HMAC-SHA256 digest of the id/ts manifest, in constant time.
func (s *Server) verifySignature(header, dataID string) (bool, string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return false, "missing_header"
	}

	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return false, "malformed_header"
	}

	manifest := fmt.Sprintf("id:%s;ts:%s;", dataID, ts)
	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return false, "digest_mismatch"
	}
	return true, ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
