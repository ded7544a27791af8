package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/data/repos/testutil"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/platform/edm"
	"github.com/openwild/sightline-backend/internal/platform/modelreg"
	"github.com/openwild/sightline-backend/internal/platform/vision"
)

type fakeVision struct {
	mu              sync.Mutex
	detections      []vision.DetectionRequest
	identifications []vision.IdentificationRequest

	// Errors are popped per call; once drained, calls succeed.
	detectErrs   []error
	identifyErrs []error
}

func (f *fakeVision) StartDetection(_ context.Context, req vision.DetectionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.detectErrs) > 0 {
		err := f.detectErrs[0]
		f.detectErrs = f.detectErrs[1:]
		return err
	}
	f.detections = append(f.detections, req)
	return nil
}

func (f *fakeVision) StartIdentification(_ context.Context, req vision.IdentificationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.identifyErrs) > 0 {
		err := f.identifyErrs[0]
		f.identifyErrs = f.identifyErrs[1:]
		return err
	}
	f.identifications = append(f.identifications, req)
	return nil
}

type fakeEDM struct {
	createResult *edm.CreateSightingResult
	createErr    error
	created      int
	deleted      []uuid.UUID
}

func (f *fakeEDM) CreateSighting(_ context.Context, _ *domain.SightingConfig) (*edm.CreateSightingResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return f.createResult, nil
}

func (f *fakeEDM) DeleteSighting(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type testEnv struct {
	db     *gorm.DB
	repos  repos.Set
	vision *fakeVision
	edm    *fakeEDM

	audit          AuditService
	collaborations CollaborationService
	matching       MatchingSetService
	detection      DetectionService
	identification IdentificationService
	commit         CommitService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)

	models := &modelreg.Registry{
		DetectionModels: map[string]modelreg.DetectionModel{
			"african_terrestrial": {Params: map[string]any{"labeler_algo": "densenet"}},
		},
		IDAlgorithms: map[string]modelreg.IDAlgorithm{
			"hotspotter_nosv": {},
		},
	}
	retry := RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	env := &testEnv{
		db:     db,
		repos:  set,
		vision: &fakeVision{},
		edm:    &fakeEDM{},
	}
	env.audit = NewAuditService(log, set.AuditLogs)
	env.collaborations = NewCollaborationService(log, set.Collaborations, nil)
	env.matching = NewMatchingSetService(log, set.Annotations, set.Encounters, env.collaborations)
	env.detection = NewDetectionService(log, db, set.AssetGroupSightings, set.Assets, set.Annotations,
		env.vision, models, env.audit, retry, "http://backend.test")
	env.identification = NewIdentificationService(log, db, set.Sightings, set.AssetGroupSightings,
		set.Encounters, set.Annotations, set.Individuals, env.matching, env.vision, models, env.audit, retry, "http://backend.test")
	env.commit = NewCommitService(log, db, set.AssetGroupSightings, set.Sightings, set.AssetGroups,
		set.Assets, set.Annotations, set.Encounters, set.Individuals, set.Users, env.edm, env.identification, env.audit)
	return env
}

func (e *testEnv) auditEntries(t *testing.T, entityID uuid.UUID) []*domain.AuditLog {
	t.Helper()
	var out []*domain.AuditLog
	if err := e.db.Where("entity_id = ?", entityID).Order("created_at ASC").Find(&out).Error; err != nil {
		t.Fatalf("load audit entries: %v", err)
	}
	return out
}

func (e *testEnv) reloadAGS(t *testing.T, id uuid.UUID) *domain.AssetGroupSighting {
	t.Helper()
	var row domain.AssetGroupSighting
	if err := e.db.Where("id = ?", id).First(&row).Error; err != nil {
		t.Fatalf("reload asset group sighting: %v", err)
	}
	return &row
}

func (e *testEnv) reloadSighting(t *testing.T, id uuid.UUID) *domain.Sighting {
	t.Helper()
	var row domain.Sighting
	if err := e.db.Where("id = ?", id).First(&row).Error; err != nil {
		t.Fatalf("reload sighting: %v", err)
	}
	return &row
}

func (e *testEnv) annotationsForAsset(t *testing.T, assetID uuid.UUID) []*domain.Annotation {
	t.Helper()
	var out []*domain.Annotation
	if err := e.db.Where("asset_id = ?", assetID).Find(&out).Error; err != nil {
		t.Fatalf("load annotations: %v", err)
	}
	return out
}
