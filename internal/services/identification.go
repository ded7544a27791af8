package services

import (
	"context"
	"fmt"
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

// IdentificationService drives a Sighting from identification to un_reviewed,
// one vision job per query annotation and algorithm.
type IdentificationService interface {
	IAPipeline(ctx context.Context, sightingID uuid.UUID) error
	HandleIdentified(ctx context.Context, sightingID uuid.UUID, jobID uuid.UUID, payload *vision.IdentificationCallback) error
	GetIDResult(ctx context.Context, sightingID uuid.UUID) (IDResult, error)
	RerunIdentification(ctx context.Context, sightingID uuid.UUID) error
}

// IDResult aggregates identification outcomes per query annotation.
type IDResult map[uuid.UUID]*IDResultEntry

type IDResultEntry struct {
	Status     string                                  `json:"status"`
	Algorithms map[string]*domain.IdentificationScores `json:"algorithms,omitempty"`
}

const (
	IDStatusNotRun   = "not_run"
	IDStatusPending  = "pending"
	IDStatusComplete = "complete"
)

type identificationService struct {
	log          *logger.Logger
	db           *gorm.DB
	sights       repos.SightingRepo
	groupSights  repos.AssetGroupSightingRepo
	encounters   repos.EncounterRepo
	annotations  repos.AnnotationRepo
	individuals  repos.IndividualRepo
	matching     MatchingSetService
	vision       vision.Client
	models       *modelreg.Registry
	audit        AuditService
	retry        RetryPolicy
	callbackBase string
}

func NewIdentificationService(
	baseLog *logger.Logger,
	db *gorm.DB,
	sights repos.SightingRepo,
	groupSights repos.AssetGroupSightingRepo,
	encounters repos.EncounterRepo,
	annotations repos.AnnotationRepo,
	individuals repos.IndividualRepo,
	matching MatchingSetService,
	visionClient vision.Client,
	models *modelreg.Registry,
	auditSvc AuditService,
	retry RetryPolicy,
	callbackBase string,
) IdentificationService {
	return &identificationService{
		log:          baseLog.With("service", "IdentificationService"),
		db:           db,
		sights:       sights,
		groupSights:  groupSights,
		encounters:   encounters,
		annotations:  annotations,
		individuals:  individuals,
		matching:     matching,
		vision:       visionClient,
		models:       models,
		audit:        auditSvc,
		retry:        retry,
		callbackBase: callbackBase,
	}
}

// identificationIntent is one dispatch prepared under the reserve
// transaction.
type identificationIntent struct {
	request           vision.IdentificationRequest
	annotationID      uuid.UUID
	algorithm         string
	matchingSetPolicy string
}

func (s *identificationService) IAPipeline(ctx context.Context, sightingID uuid.UUID) error {
	intents, err := s.reserveIdentification(ctx, sightingID)
	if err != nil {
		return err
	}
	if len(intents) == 0 {
		// Nothing to identify against.
		return s.finishWhenIdle(ctx, sightingID)
	}

	for _, intent := range intents {
		if err := s.dispatchOne(ctx, sightingID, intent); err != nil {
			return err
		}
	}
	return nil
}

func (s *identificationService) reserveIdentification(ctx context.Context, sightingID uuid.UUID) ([]*identificationIntent, error) {
	var intents []*identificationIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.LockByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("sighting %s not found", sightingID))
		}
		if row.Stage != domain.SightingStageIdentification {
			return apierr.New(409, "stage_conflict", fmt.Errorf("sighting %s is in stage %s, not identification", sightingID, row.Stage))
		}

		idCfg, err := s.identificationConfig(dbc, row)
		if err != nil {
			return err
		}
		if idCfg == nil {
			return nil
		}
		algorithm := idCfg.Algorithms[0]

		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		if jobs.AnyActive() {
			return apierr.New(409, "stage_conflict", fmt.Errorf("sighting %s already has an active identification job", sightingID))
		}

		encounterRows, err := s.encounters.GetBySightingID(dbc, sightingID)
		if err != nil {
			return err
		}
		for _, enc := range encounterRows {
			for _, query := range enc.Annotations {
				candidates, err := s.matching.Build(dbc, query, idCfg.MatchingSetPolicy, idCfg.MatchingSetFilter)
				if err != nil {
					return err
				}
				if len(candidates) == 0 {
					continue
				}
				intent, err := s.buildIntent(dbc, sightingID, query, candidates, algorithm, idCfg.MatchingSetPolicy)
				if err != nil {
					return err
				}
				intents = append(intents, intent)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return intents, nil
}

// identificationConfig resolves the id config through the originating
// AssetGroupSighting. Sightings created by other paths have none; they
// short-circuit to un_reviewed.
func (s *identificationService) identificationConfig(dbc dbctx.Context, row *domain.Sighting) (*domain.IdentificationConfig, error) {
	if row.AssetGroupSightingID == nil {
		return nil, nil
	}
	ags, err := s.groupSights.GetByID(dbc, *row.AssetGroupSightingID)
	if err != nil {
		return nil, err
	}
	if ags == nil {
		return nil, nil
	}
	cfg, err := ags.DecodeConfig()
	if err != nil {
		return nil, err
	}
	if cfg == nil || len(cfg.IDConfigs) == 0 {
		return nil, nil
	}
	if len(cfg.IDConfigs) > 1 {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("multiple identification configs; exactly one is supported"))
	}
	idCfg := cfg.IDConfigs[0]
	if len(idCfg.Algorithms) != 1 {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("identification config names %d algorithms; exactly one is supported", len(idCfg.Algorithms)))
	}
	if _, err := s.models.IDAlgorithm(idCfg.Algorithms[0]); err != nil {
		return nil, apierr.New(400, "configuration_error", err)
	}
	return &idCfg, nil
}

func (s *identificationService) buildIntent(
	dbc dbctx.Context,
	sightingID uuid.UUID,
	query *domain.Annotation,
	candidates []*domain.Annotation,
	algorithm string,
	policy string,
) (*identificationIntent, error) {
	var individualIDs []uuid.UUID
	for _, cand := range candidates {
		if cand.Encounter != nil && cand.Encounter.IndividualID != nil {
			individualIDs = append(individualIDs, *cand.Encounter.IndividualID)
		}
	}
	individualRows, err := s.individuals.GetByIDs(dbc, individualIDs)
	if err != nil {
		return nil, err
	}
	nameByID := map[uuid.UUID]string{}
	for _, ind := range individualRows {
		nameByID[ind.ID] = ind.Name
	}

	// The two database lists must be equal length and order-paired; the
	// vision service attributes matches to individuals through this pairing.
	guids := make([]uuid.UUID, 0, len(candidates))
	names := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		name := domain.UnknownIndividualName
		if cand.Encounter != nil && cand.Encounter.IndividualID != nil {
			if n, ok := nameByID[*cand.Encounter.IndividualID]; ok && n != "" {
				name = n
			}
		}
		guids = append(guids, cand.ContentGUID)
		names = append(names, name)
	}

	jobID := uuid.New()
	return &identificationIntent{
		request: vision.IdentificationRequest{
			JobID:                 jobID,
			CallbackURL:           fmt.Sprintf("%s/api/v1/sightings/%s/vision-callback?job_id=%s", s.callbackBase, sightingID, jobID),
			CallbackDetailed:      true,
			QueryAnnotUUIDList:    []uuid.UUID{query.ContentGUID},
			DatabaseAnnotUUIDList: guids,
			DatabaseAnnotNameList: names,
			Algorithm:             algorithm,
		},
		annotationID:      query.ID,
		algorithm:         algorithm,
		matchingSetPolicy: policy,
	}, nil
}

func (s *identificationService) dispatchOne(ctx context.Context, sightingID uuid.UUID, intent *identificationIntent) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.vision.StartIdentification(ctx, intent.request)
		if err == nil {
			break
		}
		if !vision.IsRetryable(err) || !s.retry.Allows(attempt) {
			return s.failSighting(ctx, sightingID, fmt.Errorf("identification dispatch for annotation %s: %w", intent.annotationID, err))
		}
		s.log.Warn("Identification dispatch failed, retrying", "sighting_id", sightingID, "attempt", attempt, "error", err)
		if sleepErr := s.retry.Sleep(ctx, attempt); sleepErr != nil {
			return sleepErr
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.LockByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil || row.Stage != domain.SightingStageIdentification {
			s.audit.Fault(dbc, "sighting", sightingID, domain.AuditTypeBackendFault,
				"dispatch accepted for a sighting no longer in identification", map[string]any{"job_id": intent.request.JobID})
			return nil
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		jobs[intent.request.JobID] = &domain.IdentificationJob{
			AnnotationID:      intent.annotationID,
			Algorithm:         intent.algorithm,
			MatchingSetPolicy: intent.matchingSetPolicy,
			Active:            true,
			Start:             time.Now().UTC(),
		}
		if err := row.SetJobs(jobs); err != nil {
			return err
		}
		s.log.Info("Identification dispatched", "sighting_id", sightingID, "job_id", intent.request.JobID,
			"annotation_id", intent.annotationID, "algorithm", intent.algorithm, "candidates", len(intent.request.DatabaseAnnotUUIDList))
		return s.sights.UpdateFields(dbc, sightingID, map[string]interface{}{"jobs": row.Jobs})
	})
}

// finishWhenIdle moves a sighting with no dispatched work straight to
// un_reviewed.
func (s *identificationService) finishWhenIdle(ctx context.Context, sightingID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.LockByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil || row.Stage != domain.SightingStageIdentification {
			return nil
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		if jobs.AnyActive() {
			return nil
		}
		return s.moveToUnReviewed(dbc, row, nil)
	})
}

func (s *identificationService) moveToUnReviewed(dbc dbctx.Context, row *domain.Sighting, extra map[string]interface{}) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"stage":                  domain.SightingStageUnReviewed,
		"un_reviewed_started_at": &now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := s.sights.UpdateFields(dbc, row.ID, updates); err != nil {
		return err
	}
	s.audit.StageChange(dbc, "sighting", row.ID, row.Stage, domain.SightingStageUnReviewed)
	return nil
}

func (s *identificationService) failSighting(ctx context.Context, sightingID uuid.UUID, cause error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.LockByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil || row.Stage != domain.SightingStageIdentification {
			return nil
		}
		s.audit.Fault(dbc, "sighting", sightingID, domain.AuditTypeBackendFault,
			"identification could not be dispatched", map[string]any{"error": cause.Error()})
		if err := s.sights.UpdateFields(dbc, sightingID, map[string]interface{}{"stage": domain.SightingStageFailed}); err != nil {
			return err
		}
		s.audit.StageChange(dbc, "sighting", sightingID, row.Stage, domain.SightingStageFailed)
		return nil
	})
}

func (s *identificationService) HandleIdentified(ctx context.Context, sightingID uuid.UUID, jobID uuid.UUID, payload *vision.IdentificationCallback) error {
	if payload == nil {
		return apierr.New(400, "malformed_callback", fmt.Errorf("empty callback payload"))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.LockByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("sighting %s not found", sightingID))
		}
		if row.Stage != domain.SightingStageIdentification {
			return apierr.New(409, "stage_conflict", fmt.Errorf("sighting %s is in stage %s, not identification", sightingID, row.Stage))
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		job, ok := jobs[jobID]
		if !ok {
			return apierr.New(400, "unknown_job", fmt.Errorf("job %s is not in the ledger of %s", jobID, sightingID))
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
			s.audit.Fault(dbc, "sighting", sightingID, domain.AuditTypeJobFault,
				"identification reported unsuccessful status", map[string]any{"job_id": jobID, "status": payload.Status})
			if err := s.sights.UpdateFields(dbc, sightingID, map[string]interface{}{"jobs": row.Jobs, "stage": domain.SightingStageFailed}); err != nil {
				return err
			}
			s.audit.StageChange(dbc, "sighting", sightingID, row.Stage, domain.SightingStageFailed)
			return nil
		}

		if payload.Result == nil {
			return apierr.New(400, "malformed_callback", fmt.Errorf("completed callback for job %s carries no result", jobID))
		}
		result := payload.Result
		if len(result.QueryAnnotUUIDList) != 1 {
			return apierr.New(400, "malformed_callback", fmt.Errorf(
				"callback for job %s names %d query annotations, want exactly 1", jobID, len(result.QueryAnnotUUIDList)))
		}

		queryRows, err := s.annotations.GetByIDs(dbc, []uuid.UUID{job.AnnotationID})
		if err != nil {
			return err
		}
		if len(queryRows) == 0 {
			return apierr.New(400, "unknown_job", fmt.Errorf("query annotation %s of job %s no longer exists", job.AnnotationID, jobID))
		}
		if result.QueryAnnotUUIDList[0] != queryRows[0].ContentGUID {
			return apierr.New(400, "malformed_callback", fmt.Errorf(
				"callback for job %s names query %s, dispatched %s", jobID, result.QueryAnnotUUIDList[0], queryRows[0].ContentGUID))
		}

		scores, err := s.extractScores(dbc, result)
		if err != nil {
			return err
		}

		job.Active = false
		job.Result = scores
		if err := row.SetJobs(jobs); err != nil {
			return err
		}
		s.log.Info("Identification completed", "sighting_id", sightingID, "job_id", jobID,
			"annotation_scores", len(scores.ByAnnotation), "individual_scores", len(scores.ByIndividual))
		if !jobs.AnyActive() {
			return s.moveToUnReviewed(dbc, row, map[string]interface{}{"jobs": row.Jobs})
		}
		return s.sights.UpdateFields(dbc, sightingID, map[string]interface{}{"jobs": row.Jobs})
	})
}

// extractScores cross-references the callback's candidate content guids back
// to local rows. Candidates deleted since dispatch are dropped silently.
func (s *identificationService) extractScores(dbc dbctx.Context, result *vision.IdentificationResult) (*domain.IdentificationScores, error) {
	var guids []uuid.UUID
	for _, m := range result.SummaryAnnot {
		guids = append(guids, m.DUUID)
	}
	for _, m := range result.SummaryName {
		guids = append(guids, m.DUUID)
	}
	candRows, err := s.annotations.GetByContentGUIDs(dbc, guids)
	if err != nil {
		return nil, err
	}
	byGUID := map[uuid.UUID]*domain.Annotation{}
	var encounterIDs []uuid.UUID
	for _, a := range candRows {
		byGUID[a.ContentGUID] = a
		if a.EncounterID != nil {
			encounterIDs = append(encounterIDs, *a.EncounterID)
		}
	}
	encounterRows, err := s.encounters.GetByIDs(dbc, encounterIDs)
	if err != nil {
		return nil, err
	}
	encByID := map[uuid.UUID]*domain.Encounter{}
	for _, e := range encounterRows {
		encByID[e.ID] = e
	}

	scores := &domain.IdentificationScores{
		ByAnnotation: map[uuid.UUID]float64{},
		ByIndividual: map[uuid.UUID]float64{},
	}
	for _, m := range result.SummaryAnnot {
		cand, ok := byGUID[m.DUUID]
		if !ok {
			continue
		}
		scores.ByAnnotation[cand.ID] = m.Score
	}
	for _, m := range result.SummaryName {
		cand, ok := byGUID[m.DUUID]
		if !ok || cand.EncounterID == nil {
			continue
		}
		enc, ok := encByID[*cand.EncounterID]
		if !ok || enc.IndividualID == nil {
			continue
		}
		if prev, dup := scores.ByIndividual[*enc.IndividualID]; !dup || m.Score > prev {
			scores.ByIndividual[*enc.IndividualID] = m.Score
		}
	}
	return scores, nil
}

func (s *identificationService) GetIDResult(ctx context.Context, sightingID uuid.UUID) (IDResult, error) {
	var out IDResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.GetByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("sighting %s not found", sightingID))
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		encounterRows, err := s.encounters.GetBySightingID(dbc, sightingID)
		if err != nil {
			return err
		}

		out = IDResult{}
		for _, enc := range encounterRows {
			for _, annot := range enc.Annotations {
				entry := &IDResultEntry{Status: IDStatusNotRun}
				latestPerAlgo, anyActive := jobs.LatestPerAlgorithm(annot.ID)
				if len(latestPerAlgo) > 0 {
					entry.Status = IDStatusComplete
					if anyActive {
						entry.Status = IDStatusPending
					}
					entry.Algorithms = map[string]*domain.IdentificationScores{}
					for algo, j := range latestPerAlgo {
						entry.Algorithms[algo] = j.Result
					}
				}
				out[annot.ID] = entry
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *identificationService) RerunIdentification(ctx context.Context, sightingID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.sights.LockByID(dbc, sightingID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("sighting %s not found", sightingID))
		}
		if row.Stage != domain.SightingStageUnReviewed && row.Stage != domain.SightingStageFailed {
			return apierr.New(409, "stage_conflict", fmt.Errorf("rerun is not legal from stage %s", row.Stage))
		}
		jobs, err := row.DecodeJobs()
		if err != nil {
			return err
		}
		if jobs.AnyActive() {
			return apierr.New(409, "rerun_conflict", fmt.Errorf("sighting %s has an active job; wait for it to terminate", sightingID))
		}
		updates := map[string]interface{}{
			"stage":                  domain.SightingStageIdentification,
			"un_reviewed_started_at": nil,
		}
		if err := s.sights.UpdateFields(dbc, sightingID, updates); err != nil {
			return err
		}
		s.audit.StageChange(dbc, "sighting", sightingID, row.Stage, domain.SightingStageIdentification)
		return nil
	})
	if err != nil {
		return err
	}
	return s.IAPipeline(ctx, sightingID)
}
