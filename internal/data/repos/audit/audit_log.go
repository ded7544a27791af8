package audit

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type AuditLogRepo interface {
	Create(dbc dbctx.Context, rows []*domain.AuditLog) ([]*domain.AuditLog, error)
	GetByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID) ([]*domain.AuditLog, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) Create(dbc dbctx.Context, rows []*domain.AuditLog) ([]*domain.AuditLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.AuditLog{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *auditLogRepo) GetByEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID) ([]*domain.AuditLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.AuditLog
	if err := transaction.WithContext(dbc.Ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
