package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

// AuditService records non-fatal faults and stage changes. Faults recorded
// here are observable through the audit log, never raised to the caller that
// triggered the original dispatch.
type AuditService interface {
	Fault(dbc dbctx.Context, entityType string, entityID uuid.UUID, auditType string, message string, payload map[string]any)
	StageChange(dbc dbctx.Context, entityType string, entityID uuid.UUID, from, to string)
}

type auditService struct {
	log  *logger.Logger
	logs repos.AuditLogRepo
}

func NewAuditService(baseLog *logger.Logger, logs repos.AuditLogRepo) AuditService {
	return &auditService{
		log:  baseLog.With("service", "AuditService"),
		logs: logs,
	}
}

func (s *auditService) Fault(dbc dbctx.Context, entityType string, entityID uuid.UUID, auditType string, message string, payload map[string]any) {
	var raw datatypes.JSON
	if len(payload) > 0 {
		if b, err := json.Marshal(payload); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	row := &domain.AuditLog{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		AuditType:  auditType,
		Message:    message,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.logs.Create(dbc, []*domain.AuditLog{row}); err != nil {
		// The fault itself must never fail the caller.
		s.log.Error("Failed to persist audit fault", "entity_type", entityType, "entity_id", entityID, "error", err)
	}
	s.log.Warn("Audit fault", "entity_type", entityType, "entity_id", entityID, "audit_type", auditType, "message", message)
}

func (s *auditService) StageChange(dbc dbctx.Context, entityType string, entityID uuid.UUID, from, to string) {
	row := &domain.AuditLog{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		AuditType:  domain.AuditTypeStageChange,
		Message:    from + " -> " + to,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.logs.Create(dbc, []*domain.AuditLog{row}); err != nil {
		s.log.Error("Failed to persist stage change", "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}
