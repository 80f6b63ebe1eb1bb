package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/viveroverde/vivero/internal/audit/domain"
	"github.com/viveroverde/vivero/internal/auditcontext"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// AuditLog records an activity entry. Storage failures are logged and
// swallowed so callers never fail because the trail could not be written.
func (s *service) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	if strings.TrimSpace(action) == "" {
		return domain.ErrInvalidAction
	}

	enriched := datatypes.JSONMap{}
	for k, v := range metadata {
		enriched[k] = v
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		enriched["request_id"] = requestID
	}

	var ip, ua *string
	if v := auditcontext.IPAddressFromContext(ctx); v != "" {
		ip = &v
	}
	if v := auditcontext.UserAgentFromContext(ctx); v != "" {
		ua = &v
	}

	entry := &domain.AuditLog{
		ID:         s.genID.Generate(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   enriched,
		IPAddress:  ip,
		UserAgent:  ua,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Error(err),
		)
	}
	return nil
}

func (s *service) List(ctx context.Context, req domain.ListAuditLogRequest) (domain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.ListAuditLogResponse{}, domain.ErrInvalidTimeRange
	}

	limit := int(req.PageSize)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	filter := domain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      limit,
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := decodeAuditCursor(token)
		if err != nil {
			return domain.ListAuditLogResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = cursor
	}

	logs, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(logs, int32(limit), func(entry *domain.AuditLog) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        entry.ID.String(),
			CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	if len(logs) > limit {
		logs = logs[:limit]
	}

	items := make([]domain.AuditLog, 0, len(logs))
	for _, entry := range logs {
		items = append(items, *entry)
	}

	return domain.ListAuditLogResponse{
		PageInfo:  *pageInfo,
		AuditLogs: items,
	}, nil
}

func decodeAuditCursor(token string) (*domain.AuditCursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(raw.ID, 10, 64)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.AuditCursor{ID: snowflake.ID(id), CreatedAt: createdAt}, nil
}
