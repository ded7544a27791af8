package sightings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type AssetGroupSightingRepo interface {
	Create(dbc dbctx.Context, rows []*domain.AssetGroupSighting) ([]*domain.AssetGroupSighting, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AssetGroupSighting, error)
	// LockByID takes a row lock; callers must hold a transaction.
	LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.AssetGroupSighting, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	GetStalledInStage(dbc dbctx.Context, stage string, olderThan time.Duration, limit int) ([]*domain.AssetGroupSighting, error)
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type assetGroupSightingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetGroupSightingRepo(db *gorm.DB, baseLog *logger.Logger) AssetGroupSightingRepo {
	return &assetGroupSightingRepo{
		db:  db,
		log: baseLog.With("repo", "AssetGroupSightingRepo"),
	}
}

func (r *assetGroupSightingRepo) Create(dbc dbctx.Context, rows []*domain.AssetGroupSighting) ([]*domain.AssetGroupSighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.AssetGroupSighting{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assetGroupSightingRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AssetGroupSighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.AssetGroupSighting
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

func (r *assetGroupSightingRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*domain.AssetGroupSighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx)
	// sqlite (tests) has no row locks; the single writer there is enough.
	if transaction.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row domain.AssetGroupSighting
	err := q.Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *assetGroupSightingRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&domain.AssetGroupSighting{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *assetGroupSightingRepo) GetStalledInStage(dbc dbctx.Context, stage string, olderThan time.Duration, limit int) ([]*domain.AssetGroupSighting, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*domain.AssetGroupSighting
	q := transaction.WithContext(dbc.Ctx).
		Where("stage = ? AND updated_at < ?", stage, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetGroupSightingRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
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
		Delete(&domain.AssetGroupSighting{}).Error
}
