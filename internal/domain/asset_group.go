package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssetGroup struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner       *User     `gorm:"foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	Description string    `gorm:"column:description" json:"description"`

	Assets    []*Asset              `gorm:"foreignKey:AssetGroupID;references:ID" json:"assets,omitempty"`
	Sightings []*AssetGroupSighting `gorm:"foreignKey:AssetGroupID;references:ID" json:"sightings,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AssetGroup) TableName() string { return "asset_group" }
