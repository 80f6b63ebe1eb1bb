package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/viveroverde/vivero/internal/order/domain"
)

func (s *Server) GetOrderByID(c *gin.Context) {
	id, err := parseOrderID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type fulfillmentActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// AdvanceFulfillment applies an operator action (ship, deliver,
// complete_pickup, cancel) to an approved order.
func (s *Server) AdvanceFulfillment(c *gin.Context) {
	id, err := parseOrderID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req fulfillmentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	order, err := s.orderSvc.Advance(c.Request.Context(), id, orderdomain.FulfillmentAction(req.Action))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func parseOrderID(raw string) (snowflake.ID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid order id", ErrInvalidRequest)
	}
	return snowflake.ID(id), nil
}
