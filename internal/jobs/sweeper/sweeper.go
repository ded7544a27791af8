package sweeper

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/services"
	"github.com/openwild/sightline-backend/internal/utils"
)

// Sweeper is the background scheduler that periodically picks up stalled
// detection work. Entities stuck with an active job are only flagged; the
// orchestrator enforces no timeout of its own, so an operator decides what to
// do with them. Entities that never got a ledger entry are redispatched.
type Sweeper struct {
	db          *gorm.DB
	log         *logger.Logger
	groupSights repos.AssetGroupSightingRepo
	detection   services.DetectionService
	audit       services.AuditService

	interval  time.Duration
	threshold time.Duration
	batch     int
	workers   int
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	groupSights repos.AssetGroupSightingRepo,
	detection services.DetectionService,
	audit services.AuditService,
) *Sweeper {
	log := baseLog.With("component", "IntegritySweeper")
	return &Sweeper{
		db:          db,
		log:         log,
		groupSights: groupSights,
		detection:   detection,
		audit:       audit,
		interval:    time.Duration(utils.GetEnvAsInt("SWEEP_INTERVAL_SECONDS", 300, log)) * time.Second,
		threshold:   time.Duration(utils.GetEnvAsInt("SWEEP_STALL_THRESHOLD_SECONDS", 3900, log)) * time.Second,
		batch:       utils.GetEnvAsInt("SWEEP_BATCH_SIZE", 50, log),
		workers:     utils.GetEnvAsInt("SWEEP_CONCURRENCY", 4, log),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go s.runLoop(ctx)
}

func (s *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Starting integrity sweeper", "interval", s.interval, "threshold", s.threshold)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Integrity sweeper stopped")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Warn("Sweep pass failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass. Exported so an operator endpoint or test can trigger
// it directly.
func (s *Sweeper) Sweep(ctx context.Context) error {
	dbc := dbctx.Context{Ctx: ctx}
	stalled, err := s.groupSights.GetStalledInStage(dbc, domain.AGSStageDetection, s.threshold, s.batch)
	if err != nil {
		return err
	}
	if len(stalled) == 0 {
		return nil
	}
	s.log.Info("Sweeping stalled detection work", "count", len(stalled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, row := range stalled {
		row := row
		g.Go(func() error {
			s.sweepOne(gctx, row)
			return nil
		})
	}
	return g.Wait()
}

func (s *Sweeper) sweepOne(ctx context.Context, row *domain.AssetGroupSighting) {
	jobs, err := row.DecodeJobs()
	if err != nil {
		s.log.Warn("Failed to decode ledger during sweep", "ags_id", row.ID, "error", err)
		return
	}

	dbc := dbctx.Context{Ctx: ctx}
	if jobs.AnyActive() {
		s.audit.Fault(dbc, "asset_group_sighting", row.ID, domain.AuditTypeBackendFault,
			"detection stalled with an active job", map[string]any{
				"stalled_since": row.UpdatedAt,
			})
		return
	}
	if len(jobs) > 0 {
		// All jobs terminal but the stage never advanced; flag it rather than
		// second-guess the callback handler.
		s.audit.Fault(dbc, "asset_group_sighting", row.ID, domain.AuditTypeBackendFault,
			"detection stalled with a fully terminal ledger", map[string]any{
				"stalled_since": row.UpdatedAt,
			})
		return
	}

	s.log.Info("Redispatching never-dispatched detection", "ags_id", row.ID)
	if err := s.detection.StartDetection(ctx, row.ID); err != nil {
		s.log.Warn("Sweep redispatch failed", "ags_id", row.ID, "error", err)
	}
}
