package sweeper

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/data/repos/testutil"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/platform/modelreg"
	"github.com/openwild/sightline-backend/internal/platform/vision"
	"github.com/openwild/sightline-backend/internal/services"
)

type fakeVision struct {
	mu         sync.Mutex
	detections []vision.DetectionRequest
}

func (f *fakeVision) StartDetection(_ context.Context, req vision.DetectionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detections = append(f.detections, req)
	return nil
}

func (f *fakeVision) StartIdentification(context.Context, vision.IdentificationRequest) error {
	return nil
}

func newSweeper(t *testing.T) (*Sweeper, *fakeVision, repos.Set) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	fv := &fakeVision{}
	models := &modelreg.Registry{
		DetectionModels: map[string]modelreg.DetectionModel{"african_terrestrial": {}},
	}
	audit := services.NewAuditService(log, set.AuditLogs)
	detection := services.NewDetectionService(log, db, set.AssetGroupSightings, set.Assets, set.Annotations,
		fv, models, audit, services.RetryPolicy{MaxAttempts: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		"http://backend.test")
	s := New(db, log, set.AssetGroupSightings, detection, audit)
	s.threshold = time.Minute
	s.batch = 10
	s.workers = 2
	return s, fv, set
}

func staleAGS(t *testing.T, set repos.Set, jobs domain.DetectionJobMap, cfg *domain.SightingConfig) *domain.AssetGroupSighting {
	t.Helper()
	db := testutil.DB(t)
	owner := testutil.CreateUser(t, db)
	group := testutil.CreateAssetGroup(t, db, owner)
	testutil.CreateAsset(t, db, group, "sweep.jpg")

	row := &domain.AssetGroupSighting{
		ID:           uuid.New(),
		AssetGroupID: group.ID,
		Stage:        domain.AGSStageDetection,
	}
	if err := row.SetConfig(cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := row.SetJobs(jobs); err != nil {
		t.Fatalf("set jobs: %v", err)
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("create ags: %v", err)
	}
	// Backdate past the stall threshold.
	if err := db.Model(&domain.AssetGroupSighting{}).Where("id = ?", row.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-2*time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	return row
}

func TestSweepRedispatchesNeverDispatched(t *testing.T) {
	s, fv, set := newSweeper(t)
	cfg := &domain.SightingConfig{
		Time:            "2026-01-01T00:00:00Z",
		TimeSpecificity: "time",
		AssetReferences: []string{"sweep.jpg"},
		DetectionModels: []string{"african_terrestrial"},
	}
	row := staleAGS(t, set, domain.DetectionJobMap{}, cfg)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	found := false
	for _, req := range fv.detections {
		if strings.Contains(req.CallbackURL, row.ID.String()) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a redispatch for %s", row.ID)
	}
}

func TestSweepFlagsActiveJobWithoutRedispatch(t *testing.T) {
	s, fv, set := newSweeper(t)
	db := testutil.DB(t)
	cfg := &domain.SightingConfig{
		Time:            "2026-01-01T00:00:00Z",
		TimeSpecificity: "time",
		AssetReferences: []string{"sweep.jpg"},
		DetectionModels: []string{"african_terrestrial"},
	}
	jobs := domain.DetectionJobMap{
		uuid.New(): {Model: "african_terrestrial", Active: true, Start: time.Now().UTC().Add(-2 * time.Hour)},
	}
	row := staleAGS(t, set, jobs, cfg)
	before := len(fv.detections)

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(fv.detections) != before {
		t.Fatalf("active job must not be redispatched")
	}
	var faults int64
	if err := db.Model(&domain.AuditLog{}).
		Where("entity_id = ? AND audit_type = ?", row.ID, domain.AuditTypeBackendFault).
		Count(&faults).Error; err != nil {
		t.Fatalf("count faults: %v", err)
	}
	if faults == 0 {
		t.Fatalf("expected a stall fault for %s", row.ID)
	}
}
