package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type EncounterRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Encounter) ([]*domain.Encounter, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Encounter, error)
	GetBySightingID(dbc dbctx.Context, sightingID uuid.UUID) ([]*domain.Encounter, error)
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type encounterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEncounterRepo(db *gorm.DB, baseLog *logger.Logger) EncounterRepo {
	return &encounterRepo{db: db, log: baseLog.With("repo", "EncounterRepo")}
}

func (r *encounterRepo) Create(dbc dbctx.Context, rows []*domain.Encounter) ([]*domain.Encounter, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.Encounter{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *encounterRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Encounter, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Encounter
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

func (r *encounterRepo) GetBySightingID(dbc dbctx.Context, sightingID uuid.UUID) ([]*domain.Encounter, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Encounter
	if err := transaction.WithContext(dbc.Ctx).
		Where("sighting_id = ?", sightingID).
		Preload("Annotations").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *encounterRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
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
		Delete(&domain.Encounter{}).Error
}
