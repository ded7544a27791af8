package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssetGroupSighting stages.
const (
	AGSStageUnknown   = "unknown"
	AGSStageDetection = "detection"
	AGSStageCuration  = "curation"
	AGSStageProcessed = "processed"
	AGSStageFailed    = "failed"
)

// AssetGroupSighting is one observation working its way through detection and
// curation before it is committed into a durable Sighting. Stage transitions
// and the job ledger are owned by the detection orchestrator; nothing else
// writes them.
type AssetGroupSighting struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	AssetGroupID uuid.UUID   `gorm:"type:uuid;not null;index" json:"asset_group_id"`
	AssetGroup   *AssetGroup `gorm:"constraint:OnDelete:CASCADE;foreignKey:AssetGroupID;references:ID" json:"asset_group,omitempty"`

	Stage  string         `gorm:"column:stage;not null;default:'unknown';index" json:"stage"`
	Config datatypes.JSON `gorm:"column:config;type:jsonb" json:"config"`
	Jobs   datatypes.JSON `gorm:"column:jobs;type:jsonb" json:"jobs"`

	DetectionAttempts  int        `gorm:"column:detection_attempts;not null;default:0" json:"detection_attempts"`
	DetectionStartedAt *time.Time `gorm:"column:detection_started_at" json:"detection_started_at,omitempty"`
	CurationStartedAt  *time.Time `gorm:"column:curation_started_at" json:"curation_started_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AssetGroupSighting) TableName() string { return "asset_group_sighting" }

func (a *AssetGroupSighting) DecodeConfig() (*SightingConfig, error) {
	if len(a.Config) == 0 {
		return nil, nil
	}
	var cfg SightingConfig
	if err := decodeJSONColumn(a.Config, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (a *AssetGroupSighting) SetConfig(cfg *SightingConfig) error {
	raw, err := encodeJSONColumn(cfg)
	if err != nil {
		return err
	}
	a.Config = raw
	return nil
}

func (a *AssetGroupSighting) DecodeJobs() (DetectionJobMap, error) {
	jobs := DetectionJobMap{}
	if err := decodeJSONColumn(a.Jobs, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (a *AssetGroupSighting) SetJobs(jobs DetectionJobMap) error {
	raw, err := encodeJSONColumn(jobs)
	if err != nil {
		return err
	}
	a.Jobs = raw
	return nil
}
