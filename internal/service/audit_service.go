package service

import (
	"context"
	"log/slog"

	"go-auth-backend/internal/model"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusDenied  = "denied"
)

type auditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService records authentication lifecycle events. Recording is
// best-effort: a failed write is logged and never fails the operation
// being audited.
type AuditService struct {
	store auditStore
}

func NewAuditService(store auditStore) *AuditService {
	return &AuditService{store: store}
}

func (s *AuditService) Record(ctx context.Context, action string, actor model.AuditActor, status string, errText string) {
	if s == nil || s.store == nil {
		return
	}

	entry := model.AuditEntry{
		Action: action,
		Actor:  actor,
		Status: status,
		Error:  errText,
	}

	if err := s.store.Log(ctx, entry); err != nil {
		slog.Warn("failed to record audit entry", "action", action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	return s.store.Query(ctx, query)
}
