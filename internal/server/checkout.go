package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/viveroverde/vivero/internal/checkout/domain"
)

// StageCheckout snapshots a cart ahead of the gateway redirect and returns
// the external reference the gateway will echo back.
func (s *Server) StageCheckout(c *gin.Context) {
	var req checkoutdomain.StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	staged, err := s.checkoutSvc.Stage(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"external_reference": staged.ExternalReference,
		"shipping_method":    staged.ShippingMethod,
		"created_at":         staged.CreatedAt,
	})
}
