package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type AssetGroupRepo interface {
	Create(dbc dbctx.Context, rows []*domain.AssetGroup) ([]*domain.AssetGroup, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AssetGroup, error)
}

type assetGroupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetGroupRepo(db *gorm.DB, baseLog *logger.Logger) AssetGroupRepo {
	return &assetGroupRepo{db: db, log: baseLog.With("repo", "AssetGroupRepo")}
}

func (r *assetGroupRepo) Create(dbc dbctx.Context, rows []*domain.AssetGroup) ([]*domain.AssetGroup, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.AssetGroup{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assetGroupRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.AssetGroup, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.AssetGroup
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
