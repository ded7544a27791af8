package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/platform/apierr"
	"github.com/openwild/sightline-backend/internal/platform/edm"
)

// CommitService converts a curated AssetGroupSighting into a durable Sighting
// with Encounters, then hands the new Sighting to identification. The whole
// transition is one logical unit: any failure undoes every row and remote
// side effect this attempt created.
type CommitService interface {
	Commit(ctx context.Context, agsID uuid.UUID) (*domain.Sighting, error)
}

type commitService struct {
	log         *logger.Logger
	db          *gorm.DB
	groupSights repos.AssetGroupSightingRepo
	sights      repos.SightingRepo
	groups      repos.AssetGroupRepo
	assets      repos.AssetRepo
	annotations repos.AnnotationRepo
	encounters  repos.EncounterRepo
	individuals repos.IndividualRepo
	users       repos.UserRepo
	edm         edm.Client
	identify    IdentificationService
	audit       AuditService
}

func NewCommitService(
	baseLog *logger.Logger,
	db *gorm.DB,
	groupSights repos.AssetGroupSightingRepo,
	sights repos.SightingRepo,
	groups repos.AssetGroupRepo,
	assets repos.AssetRepo,
	annotations repos.AnnotationRepo,
	encounters repos.EncounterRepo,
	individuals repos.IndividualRepo,
	users repos.UserRepo,
	edmClient edm.Client,
	identify IdentificationService,
	auditSvc AuditService,
) CommitService {
	return &commitService{
		log:         baseLog.With("service", "CommitService"),
		db:          db,
		groupSights: groupSights,
		sights:      sights,
		groups:      groups,
		assets:      assets,
		annotations: annotations,
		encounters:  encounters,
		individuals: individuals,
		users:       users,
		edm:         edmClient,
		identify:    identify,
		audit:       auditSvc,
	}
}

// Supported time specificities, coarsest to finest.
var timeLayouts = map[string]string{
	"time":  time.RFC3339,
	"day":   "2006-01-02",
	"month": "2006-01",
	"year":  "2006",
}

func parseConfigTime(value, specificity string) (time.Time, error) {
	layout, ok := timeLayouts[specificity]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown time specificity %q", specificity)
	}
	t, err := time.Parse(layout, value)
	if err != nil && specificity != "time" {
		// A fully qualified timestamp is acceptable at any specificity.
		if t2, err2 := time.Parse(time.RFC3339, value); err2 == nil {
			return t2.UTC(), nil
		}
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q as %s: %w", value, specificity, err)
	}
	return t.UTC(), nil
}

func (s *commitService) Commit(ctx context.Context, agsID uuid.UUID) (*domain.Sighting, error) {
	cfg, assetGroupID, err := s.precheck(ctx, agsID)
	if err != nil {
		return nil, err
	}

	// Compensations run in reverse order when a later step fails.
	var compensations []func()
	fail := func(cause error) (*domain.Sighting, error) {
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i]()
		}
		return nil, cause
	}

	remote, err := s.edm.CreateSighting(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("commit %s: legacy store rejected sighting: %w", agsID, err)
	}
	compensations = append(compensations, func() {
		if err := s.edm.DeleteSighting(ctx, remote.ID); err != nil {
			s.log.Error("Failed to undo legacy store sighting", "edm_id", remote.ID, "error", err)
		}
	})

	if len(remote.EncounterIDs) != len(cfg.Encounters) {
		return fail(apierr.New(409, "stage_conflict", fmt.Errorf(
			"commit %s: legacy store created %d encounters, config names %d", agsID, len(remote.EncounterIDs), len(cfg.Encounters))))
	}

	when, err := parseConfigTime(cfg.Time, cfg.TimeSpecificity)
	if err != nil {
		return fail(apierr.New(400, "configuration_error", err))
	}

	var sighting *domain.Sighting
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		sighting, err = s.persist(dbc, agsID, assetGroupID, cfg, remote, when)
		return err
	})
	if err != nil {
		return fail(err)
	}

	s.log.Info("Commit complete", "ags_id", agsID, "sighting_id", sighting.ID, "encounters", len(cfg.Encounters))
	if err := s.identify.IAPipeline(ctx, sighting.ID); err != nil {
		// The sighting is durable at this point; identification failures are
		// its own concern, not the commit's.
		s.log.Error("Identification handoff failed", "sighting_id", sighting.ID, "error", err)
	}
	return sighting, nil
}

func (s *commitService) precheck(ctx context.Context, agsID uuid.UUID) (*domain.SightingConfig, uuid.UUID, error) {
	var cfg *domain.SightingConfig
	var assetGroupID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		row, err := s.groupSights.LockByID(dbc, agsID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.New(404, "not_found", fmt.Errorf("asset group sighting %s not found", agsID))
		}
		if row.Stage != domain.AGSStageCuration {
			return apierr.New(409, "stage_conflict", fmt.Errorf("commit is only legal from curation, %s is in %s", agsID, row.Stage))
		}
		cfg, err = row.DecodeConfig()
		if err != nil {
			return err
		}
		if cfg == nil {
			return apierr.New(400, "configuration_error", fmt.Errorf("asset group sighting %s has no config to commit", agsID))
		}
		assetGroupID = row.AssetGroupID
		return nil
	})
	if err != nil {
		return nil, uuid.Nil, err
	}
	return cfg, assetGroupID, nil
}

// persist creates the Sighting, its Encounters and their attachments, and
// marks the AssetGroupSighting processed, all under one transaction.
func (s *commitService) persist(
	dbc dbctx.Context,
	agsID uuid.UUID,
	assetGroupID uuid.UUID,
	cfg *domain.SightingConfig,
	remote *edm.CreateSightingResult,
	when time.Time,
) (*domain.Sighting, error) {
	row, err := s.groupSights.LockByID(dbc, agsID)
	if err != nil {
		return nil, err
	}
	if row == nil || row.Stage != domain.AGSStageCuration {
		return nil, apierr.New(409, "stage_conflict", fmt.Errorf("asset group sighting %s left curation during commit", agsID))
	}

	group, err := s.groups.GetByID(dbc, assetGroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apierr.New(400, "configuration_error", fmt.Errorf("asset group %s not found", assetGroupID))
	}

	sighting := &domain.Sighting{
		ID:                   remote.ID,
		AssetGroupSightingID: &agsID,
		EDMVersion:           remote.Version,
		Stage:                domain.SightingStageIdentification,
		Time:                 when,
		TimeSpecificity:      cfg.TimeSpecificity,
	}
	if err := sighting.SetJobs(domain.IdentificationJobMap{}); err != nil {
		return nil, err
	}
	if _, err := s.sights.Create(dbc, []*domain.Sighting{sighting}); err != nil {
		return nil, err
	}

	assetRows, err := s.assets.GetByGroupAndPaths(dbc, assetGroupID, cfg.AssetReferences)
	if err != nil {
		return nil, err
	}
	if err := s.sights.AttachAssets(dbc, sighting.ID, assetRows); err != nil {
		return nil, err
	}

	for _, encCfg := range cfg.Encounters {
		ownerID := group.OwnerID
		if encCfg.OwnerEmail != "" {
			owner, err := s.users.GetByEmail(dbc, encCfg.OwnerEmail)
			if err != nil {
				return nil, err
			}
			if owner == nil {
				return nil, apierr.New(400, "configuration_error", fmt.Errorf("encounter owner email %q does not name a user", encCfg.OwnerEmail))
			}
			ownerID = owner.ID
		}

		var individualID *uuid.UUID
		if encCfg.IndividualName != "" && encCfg.IndividualName != domain.UnknownIndividualName {
			id, err := s.resolveIndividual(dbc, encCfg.IndividualName)
			if err != nil {
				return nil, err
			}
			individualID = &id
		}

		encounter := &domain.Encounter{
			ID:           uuid.New(),
			SightingID:   sighting.ID,
			OwnerID:      ownerID,
			IndividualID: individualID,
		}
		if _, err := s.encounters.Create(dbc, []*domain.Encounter{encounter}); err != nil {
			return nil, err
		}

		if len(encCfg.AnnotationIDs) > 0 {
			annotRows, err := s.annotations.GetByIDs(dbc, encCfg.AnnotationIDs)
			if err != nil {
				return nil, err
			}
			if len(annotRows) != len(encCfg.AnnotationIDs) {
				return nil, apierr.New(400, "configuration_error", fmt.Errorf(
					"encounter %s names %d annotations, %d exist", encCfg.GUID, len(encCfg.AnnotationIDs), len(annotRows)))
			}
			for _, a := range annotRows {
				if err := s.annotations.UpdateFields(dbc, a.ID, map[string]interface{}{"encounter_id": encounter.ID}); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := s.groupSights.UpdateFields(dbc, agsID, map[string]interface{}{"stage": domain.AGSStageProcessed}); err != nil {
		return nil, err
	}
	s.audit.StageChange(dbc, "asset_group_sighting", agsID, domain.AGSStageCuration, domain.AGSStageProcessed)
	return sighting, nil
}

func (s *commitService) resolveIndividual(dbc dbctx.Context, name string) (uuid.UUID, error) {
	rows, err := s.individuals.GetByNames(dbc, []string{name})
	if err != nil {
		return uuid.Nil, err
	}
	if len(rows) > 0 {
		return rows[0].ID, nil
	}
	created, err := s.individuals.Create(dbc, []*domain.Individual{{ID: uuid.New(), Name: name}})
	if err != nil {
		// A concurrent commit may have created the same name.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			rows, retryErr := s.individuals.GetByNames(dbc, []string{name})
			if retryErr == nil && len(rows) > 0 {
				return rows[0].ID, nil
			}
		}
		return uuid.Nil, err
	}
	return created[0].ID, nil
}
