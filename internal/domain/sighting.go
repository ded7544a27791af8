package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sighting stages.
const (
	SightingStageIdentification = "identification"
	SightingStageUnReviewed     = "un_reviewed"
	SightingStageProcessed      = "processed"
	SightingStageFailed         = "failed"
)

// Sighting is a durable, committed observation. The back reference to the
// AssetGroupSighting that produced it is a plain nullable foreign key; the
// reverse direction is resolved by lookup, never held as an object cycle.
type Sighting struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AssetGroupSightingID *uuid.UUID `gorm:"type:uuid;column:asset_group_sighting_id;index" json:"asset_group_sighting_id,omitempty"`

	// EDMVersion is the version token the legacy metadata store returned at
	// commit time.
	EDMVersion int64 `gorm:"column:edm_version" json:"edm_version"`

	Stage string         `gorm:"column:stage;not null;default:'identification';index" json:"stage"`
	Jobs  datatypes.JSON `gorm:"column:jobs;type:jsonb" json:"jobs"`

	Time            time.Time `gorm:"column:time;not null" json:"time"`
	TimeSpecificity string    `gorm:"column:time_specificity;not null" json:"time_specificity"`

	UnReviewedStartedAt *time.Time `gorm:"column:un_reviewed_started_at" json:"un_reviewed_started_at,omitempty"`
	ReviewedAt          *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`

	Encounters []*Encounter `gorm:"foreignKey:SightingID;references:ID" json:"encounters,omitempty"`
	Assets     []*Asset     `gorm:"many2many:sighting_asset" json:"assets,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Sighting) TableName() string { return "sighting" }

func (s *Sighting) DecodeJobs() (IdentificationJobMap, error) {
	jobs := IdentificationJobMap{}
	if err := decodeJSONColumn(s.Jobs, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *Sighting) SetJobs(jobs IdentificationJobMap) error {
	raw, err := encodeJSONColumn(jobs)
	if err != nil {
		return err
	}
	s.Jobs = raw
	return nil
}
