package sightings

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type SightingRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Sighting) ([]*domain.Sighting, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Sighting, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Sighting, error)
	// GetByAssetGroupSightingID is the derived reverse lookup for the
	// one-directional back reference.
	GetByAssetGroupSightingID(dbc dbctx.Context, agsID uuid.UUID) (*domain.Sighting, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AttachAssets(dbc dbctx.Context, id uuid.UUID, assets []*domain.Asset) error
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type sightingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSightingRepo(db *gorm.DB, baseLog *logger.Logger) SightingRepo {
	return &sightingRepo{
		db:  db,
		log: baseLog.With("repo", "SightingRepo"),
	}
}

func (r *sightingRepo) Create(dbc dbctx.Context, rows []*domain.Sighting) ([]*domain.Sighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.Sighting{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sightingRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Sighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.Sighting
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sightingRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.Sighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx)
	if transaction.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row domain.Sighting
	err := q.Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sightingRepo) GetByAssetGroupSightingID(dbc dbctx.Context, agsID uuid.UUID) (*domain.Sighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.Sighting
	err := transaction.WithContext(dbc.Ctx).
		Where("asset_group_sighting_id = ?", agsID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sightingRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Sighting{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sightingRepo) AttachAssets(dbc dbctx.Context, id uuid.UUID, assets []*domain.Asset) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(assets) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.Sighting{ID: id}).
		Association("Assets").
		Append(assets)
}

func (r *sightingRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
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
		Delete(&domain.Sighting{}).Error
}
