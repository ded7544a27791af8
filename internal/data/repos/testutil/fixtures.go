package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
)

func CreateUser(tb testing.TB, tx *gorm.DB) *domain.User {
	tb.Helper()
	row := &domain.User{
		ID:       uuid.New(),
		Email:    fmt.Sprintf("user-%s@example.org", uuid.NewString()[:8]),
		FullName: "Test User",
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("create user: %v", err)
	}
	return row
}

func CreateAssetGroup(tb testing.TB, tx *gorm.DB, owner *domain.User) *domain.AssetGroup {
	tb.Helper()
	row := &domain.AssetGroup{
		ID:      uuid.New(),
		OwnerID: owner.ID,
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("create asset group: %v", err)
	}
	return row
}

func CreateAsset(tb testing.TB, tx *gorm.DB, group *domain.AssetGroup, path string) *domain.Asset {
	tb.Helper()
	row := &domain.Asset{
		ID:           uuid.New(),
		AssetGroupID: group.ID,
		Path:         path,
		ContentGUID:  uuid.New(),
		MimeType:     "image/jpeg",
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("create asset: %v", err)
	}
	return row
}

// CreateProcessedSighting builds a sighting in the processed stage with one
// encounter owned by owner and one annotation per supplied asset.
func CreateProcessedSighting(tb testing.TB, tx *gorm.DB, owner *domain.User, assets ...*domain.Asset) (*domain.Sighting, *domain.Encounter, []*domain.Annotation) {
	tb.Helper()
	sighting := &domain.Sighting{
		ID:              uuid.New(),
		Stage:           domain.SightingStageProcessed,
		Time:            time.Now().UTC(),
		TimeSpecificity: "time",
	}
	if err := tx.Create(sighting).Error; err != nil {
		tb.Fatalf("create sighting: %v", err)
	}
	encounter := &domain.Encounter{
		ID:         uuid.New(),
		SightingID: sighting.ID,
		OwnerID:    owner.ID,
	}
	if err := tx.Create(encounter).Error; err != nil {
		tb.Fatalf("create encounter: %v", err)
	}
	var annots []*domain.Annotation
	for _, asset := range assets {
		a := &domain.Annotation{
			ID:          uuid.New(),
			AssetID:     asset.ID,
			EncounterID: &encounter.ID,
			ContentGUID: uuid.New(),
			IAClass:     "whale_fin",
			Viewpoint:   "left",
		}
		if err := tx.Create(a).Error; err != nil {
			tb.Fatalf("create annotation: %v", err)
		}
		annots = append(annots, a)
	}
	return sighting, encounter, annots
}
