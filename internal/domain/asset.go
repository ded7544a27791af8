package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Asset is one stored media file within an AssetGroup. ContentGUID is the
// identifier the vision service uses for the same image; callbacks correlate
// on it, never on the local row id.
type Asset struct {
	ID           uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	AssetGroupID uuid.UUID   `gorm:"type:uuid;not null;index" json:"asset_group_id"`
	AssetGroup   *AssetGroup `gorm:"constraint:OnDelete:CASCADE;foreignKey:AssetGroupID;references:ID" json:"asset_group,omitempty"`

	Path        string    `gorm:"column:path;not null" json:"path"`
	ContentGUID uuid.UUID `gorm:"type:uuid;column:content_guid;index" json:"content_guid"`
	MimeType    string    `gorm:"column:mime_type" json:"mime_type"`
	WidthPx     int       `gorm:"column:width_px" json:"width_px"`
	HeightPx    int       `gorm:"column:height_px" json:"height_px"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Asset) TableName() string { return "asset" }
