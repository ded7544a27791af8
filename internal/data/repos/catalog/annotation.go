package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type AnnotationRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Annotation) ([]*domain.Annotation, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Annotation, error)
	GetByContentGUIDs(dbc dbctx.Context, guids []uuid.UUID) ([]*domain.Annotation, error)
	GetByEncounterIDs(dbc dbctx.Context, encounterIDs []uuid.UUID) ([]*domain.Annotation, error)
	// Matching-set candidate queries. All of them restrict candidates to
	// annotations whose encounter's sighting has reached the processed stage.
	GetCandidatesByOwners(dbc dbctx.Context, ownerIDs []uuid.UUID) ([]*domain.Annotation, error)
	GetAllCandidates(dbc dbctx.Context) ([]*domain.Annotation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type annotationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnnotationRepo(db *gorm.DB, baseLog *logger.Logger) AnnotationRepo {
	return &annotationRepo{db: db, log: baseLog.With("repo", "AnnotationRepo")}
}

func (r *annotationRepo) Create(dbc dbctx.Context, rows []*domain.Annotation) ([]*domain.Annotation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.Annotation{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *annotationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Annotation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Annotation
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *annotationRepo) GetByContentGUIDs(dbc dbctx.Context, guids []uuid.UUID) ([]*domain.Annotation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Annotation
	if len(guids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("content_guid IN ?", guids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *annotationRepo) GetByEncounterIDs(dbc dbctx.Context, encounterIDs []uuid.UUID) ([]*domain.Annotation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Annotation
	if len(encounterIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("encounter_id IN ?", encounterIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *annotationRepo) GetCandidatesByOwners(dbc dbctx.Context, ownerIDs []uuid.UUID) ([]*domain.Annotation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Annotation
	if len(ownerIDs) == 0 {
		return out, nil
	}
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN encounter ON encounter.id = annotation.encounter_id AND encounter.deleted_at IS NULL").
		Joins("JOIN sighting ON sighting.id = encounter.sighting_id AND sighting.deleted_at IS NULL").
		Where("encounter.owner_id IN ?", ownerIDs).
		Where("sighting.stage = ?", domain.SightingStageProcessed).
		Preload("Encounter").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *annotationRepo) GetAllCandidates(dbc dbctx.Context) ([]*domain.Annotation, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Annotation
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN encounter ON encounter.id = annotation.encounter_id AND encounter.deleted_at IS NULL").
		Joins("JOIN sighting ON sighting.id = encounter.sighting_id AND sighting.deleted_at IS NULL").
		Where("sighting.stage = ?", domain.SightingStageProcessed).
		Preload("Encounter").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *annotationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Annotation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *annotationRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Unscoped().
		Where("id IN ?", ids).
		Delete(&domain.Annotation{}).Error
}
