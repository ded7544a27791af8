package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Encounter is one animal within a Sighting.
type Encounter struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SightingID uuid.UUID `gorm:"type:uuid;not null;index" json:"sighting_id"`
	Sighting   *Sighting `gorm:"constraint:OnDelete:CASCADE;foreignKey:SightingID;references:ID" json:"sighting,omitempty"`

	OwnerID      uuid.UUID   `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner        *User       `gorm:"foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	IndividualID *uuid.UUID  `gorm:"type:uuid;index" json:"individual_id,omitempty"`
	Individual   *Individual `gorm:"foreignKey:IndividualID;references:ID" json:"individual,omitempty"`

	Annotations []*Annotation `gorm:"foreignKey:EncounterID;references:ID" json:"annotations,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Encounter) TableName() string { return "encounter" }
