package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Collaboration states.
const (
	CollaborationStateApproved = "approved"
	CollaborationStatePending  = "pending"
	CollaborationStateRevoked  = "revoked"
)

// Collaboration grants ViewerID read access to the data owned by OwnerID.
// It backs the "extended" matching-set visibility rule.
type Collaboration struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID  uuid.UUID `gorm:"type:uuid;not null;index:idx_collaboration_pair" json:"owner_id"`
	ViewerID uuid.UUID `gorm:"type:uuid;not null;index:idx_collaboration_pair" json:"viewer_id"`
	State    string    `gorm:"column:state;not null;default:'pending'" json:"state"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Collaboration) TableName() string { return "collaboration" }
