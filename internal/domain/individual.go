package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnknownIndividualName is the sentinel sent to the vision service for
// candidates whose encounter has no named individual.
const UnknownIndividualName = "unknown"

type Individual struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"column:name;uniqueIndex;not null" json:"name"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Individual) TableName() string { return "individual" }
