package app

import (
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/services"
)

type Services struct {
	Audit          services.AuditService
	Collaboration  services.CollaborationService
	MatchingSet    services.MatchingSetService
	Detection      services.DetectionService
	Identification services.IdentificationService
	Commit         services.CommitService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, reposet repos.Set) Services {
	log.Info("Wiring services...")

	retry := services.DefaultRetryPolicy()

	audit := services.NewAuditService(log, reposet.AuditLogs)
	collaboration := services.NewCollaborationService(log, reposet.Collaborations, clients.Cache)
	matching := services.NewMatchingSetService(log, reposet.Annotations, reposet.Encounters, collaboration)
	detection := services.NewDetectionService(
		log,
		db,
		reposet.AssetGroupSightings,
		reposet.Assets,
		reposet.Annotations,
		clients.Vision,
		clients.Models,
		audit,
		retry,
		cfg.PublicBaseURL,
	)
	identification := services.NewIdentificationService(
		log,
		db,
		reposet.Sightings,
		reposet.AssetGroupSightings,
		reposet.Encounters,
		reposet.Annotations,
		reposet.Individuals,
		matching,
		clients.Vision,
		clients.Models,
		audit,
		retry,
		cfg.PublicBaseURL,
	)
	commit := services.NewCommitService(
		log,
		db,
		reposet.AssetGroupSightings,
		reposet.Sightings,
		reposet.AssetGroups,
		reposet.Assets,
		reposet.Annotations,
		reposet.Encounters,
		reposet.Individuals,
		reposet.Users,
		clients.EDM,
		identification,
		audit,
	)

	return Services{
		Audit:          audit,
		Collaboration:  collaboration,
		MatchingSet:    matching,
		Detection:      detection,
		Identification: identification,
		Commit:         commit,
	}
}
