package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/viveroverde/vivero/internal/audit/domain"
)

type listAuditLogsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   int32  `form:"page_size,default=50"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	req := auditdomain.ListAuditLogRequest{
		Action:     query.Action,
		TargetType: query.TargetType,
		TargetID:   query.TargetID,
	}
	req.PageToken = query.PageToken
	req.PageSize = query.PageSize

	startAt, err := parseTimeParam(query.StartAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.StartAt = startAt

	endAt, err := parseTimeParam(query.EndAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.EndAt = endAt

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidRequest, raw)
	}
	utc := parsed.UTC()
	return &utc, nil
}
