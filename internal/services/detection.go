package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/platform/apierr"
	"github.com/openwild/sightline-backend/internal/platform/modelreg"
	"github.com/openwild/sightline-backend/internal/platform/vision"
)

// DetectionService drives an AssetGroupSighting from detection to curation.
// All stage and ledger mutation happens inside short per-entity transactions;
// the vision dispatch itself never runs while a transaction is open.
type DetectionService interface {
	CreateAssetGroupSighting(ctx context.Context, assetGroupID uuid.UUID, cfg *domain.SightingConfig) (*domain.AssetGroupSighting, error)
	StartDetection(ctx context.Context, agsID uuid.UUID) error
	HandleDetected(ctx context.Context, agsID uuid.UUID, jobID uuid.UUID, payload *vision.DetectionCallback) error
	RerunDetection(ctx context.Context, agsID uuid.UUID) error
}

type detectionService struct {
	log          *logger.Logger
	db           *gorm.DB
	groupSights  repos.AssetGroupSightingRepo
	assets       repos.AssetRepo
	annotations  repos.AnnotationRepo
	vision       vision.Client
	models       *modelreg.Registry
	audit        AuditService
	retry        RetryPolicy
	callbackBase string
}

func NewDetectionService(
	baseLog *logger.Logger,
	db *gorm.DB,
	groupSights repos.AssetGroupSightingRepo,
	assets repos.AssetRepo,
	annotations repos.AnnotationRepo,
	visionClient vision.Client,
	models *modelreg.Registry,
	auditSvc AuditService,
	retry RetryPolicy,
	callbackBase string,
) DetectionService {
	return &detectionService{
		log:          baseLog.With("service", "DetectionService"),
		db:           db,
		groupSights:  groupSights,
		assets:       assets,
		annotations:  annotations,
		vision:       visionClient,
		models:       models,
		audit:        auditSvc,
		retry:        retry,
		callbackBase: callbackBase,
	}
}

func (s *detectionService) CreateAssetGroupSighting(ctx context.Context, assetGroupID uuid.UUID, cfg *domain.SightingConfig) (*domain.AssetGroupSighting, error) {
	if cfg == nil {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("sighting config is required"))
	}

	now := time.Now().UTC()
	row := &domain.AssetGroupSighting{
		ID:           uuid.New(),
		AssetGroupID: assetGroupID,
		Stage:        domain.AGSStageDetection,
	}
	// Nothing to detect on means curation starts immediately.
	if len(cfg.AssetReferences) == 0 || len(cfg.DetectionModels) == 0 {
		row.Stage = domain.AGSStageCuration
		row.CurationStartedAt = &now
	}
	if err := row.SetConfig(cfg); err != nil {
		return nil, err
	}
	if err := row.SetJobs(domain.DetectionJobMap{}); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		_, err := s.groupSights.Create(dbc, []*domain.AssetGroupSighting{row})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Created asset group sighting", "ags_id", row.ID, "stage", row.Stage)
	return row, nil
}

// detectionIntent is everything gathered under the reserve transaction that
// the out-of-transaction dispatch needs.
type detectionIntent struct {
	request  vision.DetectionRequest
	model    string
	assetIDs []uuid.UUID
}

func (s *detectionService) StartDetection(ctx context.Context, agsID uuid.UUID) error {
	intent, err := s.reserveDetection(ctx, agsID)
	if err != nil {
		return err
	}
	if intent == nil {
		return nil
	}

	for attempt := 1; ; attempt++ {
		err = s.vision.StartDetection(ctx, intent.request)
		if err == nil {
			break
		}
		if !vision.IsRetryable(err) {
			return s.abandonDetection(ctx, agsID, err)
		}
		attempts, recErr := s.recordDispatchFailure(ctx, agsID)
		if recErr != nil {
			return recErr
		}
		if !s.retry.Allows(attempts) {
			return s.abandonDetection(ctx, agsID, err)
		}
		s.log.Warn("Detection dispatch failed, retrying", "ags_id", agsID, "attempt", attempts, "error", err)
		if sleepErr := s.retry.Sleep(ctx, attempt); sleepErr != nil {
			return sleepErr
		}
	}

	return s.recordDispatchSuccess(ctx, agsID, intent)
}

func (s *detectionService) reserveDetection(ctx context.Context, agsID uuid.UUID) (*detectionIntent, error) {
	var intent *detectionIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("asset group sighting %s not found", agsID))
		}
		if row.Stage != domain.AGSStageDetection {
			return apierr.New(409, "stage_conflict", fmt.Errorf("asset group sighting %s is in stage %s, not detection", agsID, row.Stage))
		}

		cfg, err := row.DecodeConfig()
		if err != nil {
			return err
		}
		if cfg == nil {
			return apierr.New(400, "configuration_error", fmt.Errorf("asset group sighting %s has no config", agsID))
		}
		if len(cfg.DetectionModels) > 1 {
			return apierr.New(400, "configuration_error", fmt.Errorf("multiple detection models configured; exactly one is supported"))
		}
		if len(cfg.DetectionModels) == 0 || len(cfg.AssetReferences) == 0 {
			return s.moveToCuration(dbc, row, nil)
		}
		modelName := cfg.DetectionModels[0]
		model, err := s.models.DetectionModel(modelName)
		if err != nil {
			return apierr.New(400, "configuration_error", err)
		}

		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		if jobs.AnyActive() {
			return apierr.New(409, "stage_conflict", fmt.Errorf("asset group sighting %s already has an active detection job", agsID))
		}

		rows, err := s.assets.GetByGroupAndPaths(dbc, row.AssetGroupID, cfg.AssetReferences)
		if err != nil {
			return err
		}
		resolved := map[string]struct{}{}
		for _, a := range rows {
			resolved[a.Path] = struct{}{}
		}
		for _, ref := range cfg.AssetReferences {
			if _, ok := resolved[ref]; !ok {
				return apierr.New(400, "configuration_error", fmt.Errorf("asset reference %q does not resolve to a stored asset", ref))
			}
		}

		// The callback handler zips results back by this order.
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
		seen := map[uuid.UUID]struct{}{}
		var assetIDs, guids []uuid.UUID
		for _, a := range rows {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			assetIDs = append(assetIDs, a.ID)
			guids = append(guids, a.ContentGUID)
		}

		updates := map[string]interface{}{}
		if row.DetectionStartedAt == nil {
			now := time.Now().UTC()
			updates["detection_started_at"] = &now
		}
		if len(updates) > 0 {
			if err := s.groupSights.UpdateFields(dbc, row.ID, updates); err != nil {
				return err
			}
		}

		jobID := uuid.New()
		intent = &detectionIntent{
			request: vision.DetectionRequest{
				JobID:            jobID,
				CallbackURL:      fmt.Sprintf("%s/api/v1/asset-groups/sightings/%s/vision-callback?job_id=%s", s.callbackBase, row.ID, jobID),
				CallbackDetailed: true,
				ImageUUIDList:    guids,
				ModelParams:      model.Params,
			},
			model:    modelName,
			assetIDs: assetIDs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *detectionService) recordDispatchSuccess(ctx context.Context, agsID uuid.UUID, intent *detectionIntent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil || row.Stage != domain.AGSStageDetection {
			s.audit.Fault(dbc, "asset_group_sighting", agsID, domain.AuditTypeBackendFault,
				"dispatch accepted for an entity no longer in detection", map[string]any{"job_id": intent.request.JobID})
			return nil
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		jobs[intent.request.JobID] = &domain.DetectionJob{
			Model:    intent.model,
			Active:   true,
			Start:    time.Now().UTC(),
			AssetIDs: intent.assetIDs,
		}
		if err := row.SetJobs(jobs); err != nil {
			return err
		}
		s.log.Info("Detection dispatched", "ags_id", agsID, "job_id", intent.request.JobID, "model", intent.model, "assets", len(intent.assetIDs))
		return s.groupSights.UpdateFields(dbc, agsID, map[string]interface{}{"jobs": row.Jobs})
	})
}

func (s *detectionService) recordDispatchFailure(ctx context.Context, agsID uuid.UUID) (int, error) {
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("asset group sighting %s not found", agsID))
		}
		attempts = row.DetectionAttempts + 1
		return s.groupSights.UpdateFields(dbc, agsID, map[string]interface{}{"detection_attempts": attempts})
	})
	return attempts, err
}

// abandonDetection is the degraded-success path: dispatch could not be
// delivered, so curation proceeds with zero annotations.
func (s *detectionService) abandonDetection(ctx context.Context, agsID uuid.UUID, cause error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil || row.Stage != domain.AGSStageDetection {
			return nil
		}
		s.audit.Fault(dbc, "asset_group_sighting", agsID, domain.AuditTypeBackendFault,
			"detection dispatch abandoned", map[string]any{"error": cause.Error(), "attempts": row.DetectionAttempts})
		return s.moveToCuration(dbc, row, nil)
	})
}

func (s *detectionService) moveToCuration(dbc dbctx.Context, row *domain.AssetGroupSighting, jobsRaw map[string]interface{}) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"stage":               domain.AGSStageCuration,
		"curation_started_at": &now,
	}
	for k, v := range jobsRaw {
		updates[k] = v
	}
	if err := s.groupSights.UpdateFields(dbc, row.ID, updates); err != nil {
		return err
	}
	s.audit.StageChange(dbc, "asset_group_sighting", row.ID, row.Stage, domain.AGSStageCuration)
	return nil
}

func (s *detectionService) HandleDetected(ctx context.Context, agsID uuid.UUID, jobID uuid.UUID, payload *vision.DetectionCallback) error {
	if payload == nil {
		return apierr.New(400, "malformed_callback", fmt.Errorf("empty callback payload"))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("asset group sighting %s not found", agsID))
		}
		if row.Stage != domain.AGSStageDetection {
			return apierr.New(409, "stage_conflict", fmt.Errorf("asset group sighting %s is in stage %s, not detection", agsID, row.Stage))
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		job, ok := jobs[jobID]
		if !ok {
			return apierr.New(400, "unknown_job", fmt.Errorf("job %s is not in the ledger of %s", jobID, agsID))
		}
		if !job.Active {
			// Idempotency: the first terminal callback won; this one changes nothing.
			return apierr.New(409, "stage_conflict", fmt.Errorf("job %s is already terminal", jobID))
		}
		if !vision.IsTerminalStatus(payload.Status) {
			return apierr.New(400, "malformed_callback", fmt.Errorf("callback for job %s carries no status", jobID))
		}

		if payload.Status != vision.StatusCompleted {
			job.Active = false
			job.Error = payload.Status
			if err := row.SetJobs(jobs); err != nil {
				return err
			}
			s.audit.Fault(dbc, "asset_group_sighting", agsID, domain.AuditTypeJobFault,
				"detection reported unsuccessful status", map[string]any{"job_id": jobID, "status": payload.Status})
			if !jobs.AnyActive() {
				return s.moveToCuration(dbc, row, map[string]interface{}{"jobs": row.Jobs})
			}
			return s.groupSights.UpdateFields(dbc, agsID, map[string]interface{}{"jobs": row.Jobs})
		}

		if payload.Result == nil {
			return apierr.New(400, "malformed_callback", fmt.Errorf("completed callback for job %s carries no result", jobID))
		}
		result := payload.Result
		if len(result.ImageUUIDList) != len(job.AssetIDs) || len(result.ResultsList) != len(job.AssetIDs) {
			return apierr.New(400, "malformed_callback", fmt.Errorf(
				"result lists of job %s have %d/%d entries, dispatched %d assets",
				jobID, len(result.ImageUUIDList), len(result.ResultsList), len(job.AssetIDs)))
		}

		assetRows, err := s.assets.GetByIDs(dbc, job.AssetIDs)
		if err != nil {
			return err
		}
		byID := map[uuid.UUID]*domain.Asset{}
		for _, a := range assetRows {
			byID[a.ID] = a
		}

		var created []*domain.Annotation
		for i, assetID := range job.AssetIDs {
			asset, ok := byID[assetID]
			if !ok {
				// Asset deleted since dispatch; its detections have nowhere to land.
				continue
			}
			if result.ImageUUIDList[i] != asset.ContentGUID {
				return apierr.New(400, "malformed_callback", fmt.Errorf(
					"result entry %d of job %s names image %s, dispatched %s", i, jobID, result.ImageUUIDList[i], asset.ContentGUID))
			}
			for _, det := range result.ResultsList[i] {
				viewpoint := det.Viewpoint
				if viewpoint == "" {
					viewpoint = "unknown"
				}
				created = append(created, &domain.Annotation{
					ID:          uuid.New(),
					AssetID:     asset.ID,
					ContentGUID: det.UUID,
					IAClass:     det.Class,
					Viewpoint:   viewpoint,
					BoundsX:     det.XTL,
					BoundsY:     det.YTL,
					BoundsW:     det.Width,
					BoundsH:     det.Height,
					BoundsTheta: det.Theta,
				})
			}
		}
		if _, err := s.annotations.Create(dbc, created); err != nil {
			return err
		}

		job.Active = false
		if raw, err := json.Marshal(result); err == nil {
			job.Result = raw
		}
		if err := row.SetJobs(jobs); err != nil {
			return err
		}
		s.log.Info("Detection completed", "ags_id", agsID, "job_id", jobID, "annotations", len(created))
		if !jobs.AnyActive() {
			return s.moveToCuration(dbc, row, map[string]interface{}{"jobs": row.Jobs})
		}
		return s.groupSights.UpdateFields(dbc, agsID, map[string]interface{}{"jobs": row.Jobs})
	})
}

func (s *detectionService) RerunDetection(ctx context.Context, agsID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("asset group sighting %s not found", agsID))
		}
		if row.Stage != domain.AGSStageCuration && row.Stage != domain.AGSStageDetection {
			return apierr.New(409, "stage_conflict", fmt.Errorf("rerun is not legal from stage %s", row.Stage))
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		if jobs.AnyActive() {
			return apierr.New(409, "rerun_conflict", fmt.Errorf("asset group sighting %s has an active job; wait for it to terminate", agsID))
		}
		updates := map[string]interface{}{
			"stage":                domain.AGSStageDetection,
			"detection_attempts":   0,
			"detection_started_at": nil,
			"curation_started_at":  nil,
		}
		if err := s.groupSights.UpdateFields(dbc, agsID, updates); err != nil {
			return err
		}
		s.audit.StageChange(dbc, "asset_group_sighting", agsID, row.Stage, domain.AGSStageDetection)
		return nil
	})
	if err != nil {
		return err
	}
	return s.StartDetection(ctx, agsID)
}
