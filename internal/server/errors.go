package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
	checkoutdomain "github.com/viveroverde/vivero/internal/checkout/domain"
	gatewaydomain "github.com/viveroverde/vivero/internal/gateway/domain"
	inventorydomain "github.com/viveroverde/vivero/internal/inventory/domain"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
	pkgdb "github.com/viveroverde/vivero/pkg/db"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, checkoutdomain.ErrInvalidStage),
		errors.Is(err, orderdomain.ErrInvalidFulfillmentStep),
		errors.Is(err, orderdomain.ErrInvalidShippingMethod),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	case errors.Is(err, orderdomain.ErrIllegalTransition):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, orderdomain.ErrOrderNotFound),
		errors.Is(err, inventorydomain.ErrProductNotFound),
		errors.Is(err, checkoutdomain.ErrStagedDataNotFound),
		errors.Is(err, gatewaydomain.ErrPaymentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "upstream_unavailable", Message: err.Error()}
	case pkgdb.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "duplicate"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return payload.Type, "5xx"
	case status >= http.StatusBadRequest:
		return payload.Type, "4xx"
	default:
		return payload.Type, "ok"
	}
}
