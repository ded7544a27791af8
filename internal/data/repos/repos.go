package repos

import (
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/data/repos/audit"
	"github.com/openwild/sightline-backend/internal/data/repos/catalog"
	"github.com/openwild/sightline-backend/internal/data/repos/sightings"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type UserRepo = catalog.UserRepo
type AssetGroupRepo = catalog.AssetGroupRepo
type AssetRepo = catalog.AssetRepo
type AnnotationRepo = catalog.AnnotationRepo
type EncounterRepo = catalog.EncounterRepo
type IndividualRepo = catalog.IndividualRepo
type CollaborationRepo = catalog.CollaborationRepo

type AssetGroupSightingRepo = sightings.AssetGroupSightingRepo
type SightingRepo = sightings.SightingRepo

type AuditLogRepo = audit.AuditLogRepo

var NewUserRepo = catalog.NewUserRepo
var NewAssetGroupRepo = catalog.NewAssetGroupRepo
var NewAssetRepo = catalog.NewAssetRepo
var NewAnnotationRepo = catalog.NewAnnotationRepo
var NewEncounterRepo = catalog.NewEncounterRepo
var NewIndividualRepo = catalog.NewIndividualRepo
var NewCollaborationRepo = catalog.NewCollaborationRepo
var NewAssetGroupSightingRepo = sightings.NewAssetGroupSightingRepo
var NewSightingRepo = sightings.NewSightingRepo
var NewAuditLogRepo = audit.NewAuditLogRepo

// Set bundles every repo for wiring.
type Set struct {
	Users               UserRepo
	AssetGroups         AssetGroupRepo
	Assets              AssetRepo
	Annotations         AnnotationRepo
	Encounters          EncounterRepo
	Individuals         IndividualRepo
	Collaborations      CollaborationRepo
	AssetGroupSightings AssetGroupSightingRepo
	Sightings           SightingRepo
	AuditLogs           AuditLogRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Users:               NewUserRepo(db, baseLog),
		AssetGroups:         NewAssetGroupRepo(db, baseLog),
		Assets:              NewAssetRepo(db, baseLog),
		Annotations:         NewAnnotationRepo(db, baseLog),
		Encounters:          NewEncounterRepo(db, baseLog),
		Individuals:         NewIndividualRepo(db, baseLog),
		Collaborations:      NewCollaborationRepo(db, baseLog),
		AssetGroupSightings: NewAssetGroupSightingRepo(db, baseLog),
		Sightings:           NewSightingRepo(db, baseLog),
		AuditLogs:           NewAuditLogRepo(db, baseLog),
	}
}
