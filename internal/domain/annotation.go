package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Annotation is a bounded region of interest on an Asset. An annotation with
// no encounter is uncurated and stays out of any matching set that needs an
// encounter or sighting context.
type Annotation struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssetID uuid.UUID `gorm:"type:uuid;not null;index" json:"asset_id"`
	Asset   *Asset    `gorm:"constraint:OnDelete:CASCADE;foreignKey:AssetID;references:ID" json:"asset,omitempty"`

	EncounterID *uuid.UUID `gorm:"type:uuid;index" json:"encounter_id,omitempty"`
	Encounter   *Encounter `gorm:"foreignKey:EncounterID;references:ID" json:"encounter,omitempty"`

	// ContentGUID correlates this annotation with the vision service's own
	// identifier space.
	ContentGUID uuid.UUID `gorm:"type:uuid;column:content_guid;uniqueIndex" json:"content_guid"`

	IAClass   string `gorm:"column:ia_class;not null" json:"ia_class"`
	Viewpoint string `gorm:"column:viewpoint;not null;default:'unknown'" json:"viewpoint"`

	BoundsX     int     `gorm:"column:bounds_x" json:"bounds_x"`
	BoundsY     int     `gorm:"column:bounds_y" json:"bounds_y"`
	BoundsW     int     `gorm:"column:bounds_w" json:"bounds_w"`
	BoundsH     int     `gorm:"column:bounds_h" json:"bounds_h"`
	BoundsTheta float64 `gorm:"column:bounds_theta" json:"bounds_theta"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Annotation) TableName() string { return "annotation" }
