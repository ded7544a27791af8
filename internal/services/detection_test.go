package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/data/repos/testutil"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/platform/apierr"
	"github.com/openwild/sightline-backend/internal/platform/vision"
)

func assertAPIErr(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected apierr, got %v", err)
	}
	if apiErr.Status != status || apiErr.Code != code {
		t.Fatalf("expected %d/%s, got %d/%s (%v)", status, code, apiErr.Status, apiErr.Code, apiErr.Err)
	}
}

func detectionConfig(paths ...string) *domain.SightingConfig {
	return &domain.SightingConfig{
		Time:            "2026-03-14T09:00:00Z",
		TimeSpecificity: "time",
		AssetReferences: paths,
		DetectionModels: []string{"african_terrestrial"},
	}
}

func TestCreateWithoutAssetsStartsInCuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)

	row, err := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if row.Stage != domain.AGSStageCuration {
		t.Fatalf("expected curation, got %s", row.Stage)
	}
	if row.CurationStartedAt == nil {
		t.Fatalf("expected curation start time")
	}
	if len(env.vision.detections) != 0 {
		t.Fatalf("expected no dispatch, got %d", len(env.vision.detections))
	}
}

func TestDetectionHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "zebra.jpg")

	row, err := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("zebra.jpg"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if row.Stage != domain.AGSStageDetection {
		t.Fatalf("expected detection, got %s", row.Stage)
	}

	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}
	if len(env.vision.detections) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(env.vision.detections))
	}
	req := env.vision.detections[0]
	if len(req.ImageUUIDList) != 1 || req.ImageUUIDList[0] != asset.ContentGUID {
		t.Fatalf("dispatch names wrong images: %v", req.ImageUUIDList)
	}

	reloaded := env.reloadAGS(t, row.ID)
	jobs, err := reloaded.DecodeJobs()
	if err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	job, ok := jobs[req.JobID]
	if !ok || !job.Active {
		t.Fatalf("expected active ledger entry for %s", req.JobID)
	}
	if len(job.AssetIDs) != 1 || job.AssetIDs[0] != asset.ID {
		t.Fatalf("ledger records wrong assets: %v", job.AssetIDs)
	}

	callback := &vision.DetectionCallback{
		JobID:  req.JobID,
		Status: vision.StatusCompleted,
		Result: &vision.DetectionResult{
			ImageUUIDList: []uuid.UUID{asset.ContentGUID},
			ResultsList: [][]vision.DetectionResultRow{{
				{Class: "whale_fin", Viewpoint: "left", UUID: uuid.New(), XTL: 10, YTL: 20, Width: 100, Height: 50},
			}},
		},
	}
	if err := env.detection.HandleDetected(ctx, row.ID, req.JobID, callback); err != nil {
		t.Fatalf("handle detected: %v", err)
	}

	annots := env.annotationsForAsset(t, asset.ID)
	if len(annots) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(annots))
	}
	if annots[0].IAClass != "whale_fin" || annots[0].Viewpoint != "left" {
		t.Fatalf("annotation fields wrong: %+v", annots[0])
	}

	reloaded = env.reloadAGS(t, row.ID)
	if reloaded.Stage != domain.AGSStageCuration {
		t.Fatalf("expected curation, got %s", reloaded.Stage)
	}
	jobs, _ = reloaded.DecodeJobs()
	if jobs[req.JobID].Active {
		t.Fatalf("job should be terminal")
	}
}

func TestDetectionUnsuccessfulStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "giraffe.jpg")

	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("giraffe.jpg"))
	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}
	jobID := env.vision.detections[0].JobID

	err := env.detection.HandleDetected(ctx, row.ID, jobID, &vision.DetectionCallback{JobID: jobID, Status: "exception"})
	if err != nil {
		t.Fatalf("handle detected: %v", err)
	}

	if got := env.annotationsForAsset(t, asset.ID); len(got) != 0 {
		t.Fatalf("expected no annotations, got %d", len(got))
	}
	reloaded := env.reloadAGS(t, row.ID)
	if reloaded.Stage != domain.AGSStageCuration {
		t.Fatalf("expected curation, got %s", reloaded.Stage)
	}

	var faults int
	for _, entry := range env.auditEntries(t, row.ID) {
		if entry.AuditType == domain.AuditTypeJobFault {
			faults++
		}
	}
	if faults != 1 {
		t.Fatalf("expected 1 job fault, got %d", faults)
	}
}

func TestDetectionCallbackLengthMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "lion.jpg")

	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("lion.jpg"))
	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}
	jobID := env.vision.detections[0].JobID

	err := env.detection.HandleDetected(ctx, row.ID, jobID, &vision.DetectionCallback{
		JobID:  jobID,
		Status: vision.StatusCompleted,
		Result: &vision.DetectionResult{
			ImageUUIDList: []uuid.UUID{asset.ContentGUID, uuid.New()},
			ResultsList:   [][]vision.DetectionResultRow{{}, {}},
		},
	})
	assertAPIErr(t, err, 400, "malformed_callback")

	// The rejected callback must leave the job active and the stage unchanged.
	reloaded := env.reloadAGS(t, row.ID)
	if reloaded.Stage != domain.AGSStageDetection {
		t.Fatalf("expected detection, got %s", reloaded.Stage)
	}
	jobs, _ := reloaded.DecodeJobs()
	if !jobs[jobID].Active {
		t.Fatalf("job should still be active")
	}
}

func TestDetectionCallbackIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "elephant.jpg")

	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("elephant.jpg"))
	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}
	jobID := env.vision.detections[0].JobID
	callback := &vision.DetectionCallback{
		JobID:  jobID,
		Status: vision.StatusCompleted,
		Result: &vision.DetectionResult{
			ImageUUIDList: []uuid.UUID{asset.ContentGUID},
			ResultsList: [][]vision.DetectionResultRow{{
				{Class: "whale_fin", Viewpoint: "left", UUID: uuid.New()},
			}},
		},
	}
	if err := env.detection.HandleDetected(ctx, row.ID, jobID, callback); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	err := env.detection.HandleDetected(ctx, row.ID, jobID, callback)
	assertAPIErr(t, err, 409, "stage_conflict")

	if got := env.annotationsForAsset(t, asset.ID); len(got) != 1 {
		t.Fatalf("second delivery duplicated annotations: %d", len(got))
	}
}

func TestDetectionUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	testutil.CreateAsset(t, env.db, group, "kudu.jpg")

	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("kudu.jpg"))
	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}

	err := env.detection.HandleDetected(ctx, row.ID, uuid.New(), &vision.DetectionCallback{Status: vision.StatusCompleted})
	assertAPIErr(t, err, 400, "unknown_job")
}

func TestDetectionDispatchExhaustsRetries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	testutil.CreateAsset(t, env.db, group, "rhino.jpg")

	env.vision.detectErrs = []error{errors.New("dial tcp: refused"), errors.New("dial tcp: refused"), errors.New("dial tcp: refused")}
	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("rhino.jpg"))

	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("exhausted dispatch should degrade, not error: %v", err)
	}

	reloaded := env.reloadAGS(t, row.ID)
	if reloaded.Stage != domain.AGSStageCuration {
		t.Fatalf("expected curation after exhaustion, got %s", reloaded.Stage)
	}
	if reloaded.DetectionAttempts < 2 {
		t.Fatalf("expected recorded attempts, got %d", reloaded.DetectionAttempts)
	}
	jobs, _ := reloaded.DecodeJobs()
	if len(jobs) != 0 {
		t.Fatalf("no ledger entry should exist for an undelivered dispatch, got %d", len(jobs))
	}

	var faults int
	for _, entry := range env.auditEntries(t, row.ID) {
		if entry.AuditType == domain.AuditTypeBackendFault {
			faults++
		}
	}
	if faults == 0 {
		t.Fatalf("expected a backend fault for the abandoned dispatch")
	}
}

func TestDetectionNonRetryableDispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	testutil.CreateAsset(t, env.db, group, "hyena.jpg")

	env.vision.detectErrs = []error{&vision.HTTPError{StatusCode: 400, Body: "bad model"}}
	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("hyena.jpg"))

	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("non-retryable dispatch should degrade, not error: %v", err)
	}
	reloaded := env.reloadAGS(t, row.ID)
	if reloaded.Stage != domain.AGSStageCuration {
		t.Fatalf("expected curation, got %s", reloaded.Stage)
	}
}

func TestDetectionMultipleModelsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	testutil.CreateAsset(t, env.db, group, "impala.jpg")

	cfg := detectionConfig("impala.jpg")
	cfg.DetectionModels = []string{"african_terrestrial", "whale_fluke"}
	row, err := env.detection.CreateAssetGroupSighting(ctx, group.ID, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = env.detection.StartDetection(ctx, row.ID)
	assertAPIErr(t, err, 400, "configuration_error")
}

func TestDetectionUnresolvedAssetReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)

	row, err := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("missing.jpg"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = env.detection.StartDetection(ctx, row.ID)
	assertAPIErr(t, err, 400, "configuration_error")
}

func TestRerunDetectionConflictWhileActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	testutil.CreateAsset(t, env.db, group, "buffalo.jpg")

	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("buffalo.jpg"))
	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}

	err := env.detection.RerunDetection(ctx, row.ID)
	assertAPIErr(t, err, 409, "rerun_conflict")
}

func TestRerunDetectionFromCuration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, env.db)
	group := testutil.CreateAssetGroup(t, env.db, owner)
	asset := testutil.CreateAsset(t, env.db, group, "leopard.jpg")

	row, _ := env.detection.CreateAssetGroupSighting(ctx, group.ID, detectionConfig("leopard.jpg"))
	if err := env.detection.StartDetection(ctx, row.ID); err != nil {
		t.Fatalf("start detection: %v", err)
	}
	jobID := env.vision.detections[0].JobID
	if err := env.detection.HandleDetected(ctx, row.ID, jobID, &vision.DetectionCallback{
		JobID:  jobID,
		Status: vision.StatusCompleted,
		Result: &vision.DetectionResult{
			ImageUUIDList: []uuid.UUID{asset.ContentGUID},
			ResultsList:   [][]vision.DetectionResultRow{{}},
		},
	}); err != nil {
		t.Fatalf("handle detected: %v", err)
	}

	if err := env.detection.RerunDetection(ctx, row.ID); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(env.vision.detections) != 2 {
		t.Fatalf("expected redispatch, got %d dispatches", len(env.vision.detections))
	}
	reloaded := env.reloadAGS(t, row.ID)
	if reloaded.Stage != domain.AGSStageDetection {
		t.Fatalf("expected detection after rerun, got %s", reloaded.Stage)
	}
}
