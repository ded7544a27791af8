package domain

import (
	"github.com/google/uuid"
)

// SightingConfig is the sighting-shaped metadata an AssetGroupSighting is
// created with. It drives detection, curation and the commit into a durable
// Sighting.
type SightingConfig struct {
	LocationID       string   `json:"location_id,omitempty"`
	DecimalLatitude  *float64 `json:"decimal_latitude,omitempty"`
	DecimalLongitude *float64 `json:"decimal_longitude,omitempty"`

	// Time is ISO-8601; TimeSpecificity qualifies how much of it is
	// meaningful ("time", "day", "month", "year").
	Time            string `json:"time"`
	TimeSpecificity string `json:"time_specificity"`

	// AssetReferences are filenames within the owning AssetGroup.
	AssetReferences []string `json:"asset_references"`

	DetectionModels []string               `json:"detection_models"`
	IDConfigs       []IdentificationConfig `json:"id_configs"`
	Encounters      []EncounterConfig      `json:"encounters"`
}

type IdentificationConfig struct {
	Algorithms        []string       `json:"algorithms"`
	MatchingSetPolicy string         `json:"matching_set"`
	MatchingSetFilter map[string]any `json:"matching_set_filter,omitempty"`
}

type EncounterConfig struct {
	GUID           uuid.UUID   `json:"guid"`
	OwnerEmail     string      `json:"owner_email,omitempty"`
	IndividualName string      `json:"individual_name,omitempty"`
	AnnotationIDs  []uuid.UUID `json:"annotations,omitempty"`
}
