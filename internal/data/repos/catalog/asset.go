package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type AssetRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Asset) ([]*domain.Asset, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Asset, error)
	// GetByGroupAndPaths resolves asset references (filenames) against the
	// stored assets of one group.
	GetByGroupAndPaths(dbc dbctx.Context, groupID uuid.UUID, paths []string) ([]*domain.Asset, error)
	GetByAssetGroupID(dbc dbctx.Context, groupID uuid.UUID) ([]*domain.Asset, error)
	GetByContentGUIDs(dbc dbctx.Context, guids []uuid.UUID) ([]*domain.Asset, error)
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) Create(dbc dbctx.Context, rows []*domain.Asset) ([]*domain.Asset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.Asset{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Asset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Asset
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

func (r *assetRepo) GetByGroupAndPaths(dbc dbctx.Context, groupID uuid.UUID, paths []string) ([]*domain.Asset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Asset
	if len(paths) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("asset_group_id = ? AND path IN ?", groupID, paths).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) GetByAssetGroupID(dbc dbctx.Context, groupID uuid.UUID) ([]*domain.Asset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Asset
	if err := transaction.WithContext(dbc.Ctx).
		Where("asset_group_id = ?", groupID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) GetByContentGUIDs(dbc dbctx.Context, guids []uuid.UUID) ([]*domain.Asset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Asset
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
