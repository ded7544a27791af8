package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Audit types.
const (
	AuditTypeBackendFault = "backend_fault"
	AuditTypeJobFault     = "job_fault"
	AuditTypeStageChange  = "stage_change"
)

// AuditLog records faults and stage changes that are never surfaced as errors
// to the original caller: unsuccessful vision results, rejected callbacks,
// exhausted retries. Append only.
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EntityType string         `gorm:"column:entity_type;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uuid.UUID      `gorm:"type:uuid;column:entity_id;not null;index:idx_audit_entity" json:"entity_id"`
	AuditType  string         `gorm:"column:audit_type;not null" json:"audit_type"`
	Message    string         `gorm:"column:message;not null" json:"message"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_log" }
