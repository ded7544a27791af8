package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type IndividualRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Individual) ([]*domain.Individual, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Individual, error)
	GetByNames(dbc dbctx.Context, names []string) ([]*domain.Individual, error)
}

type individualRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIndividualRepo(db *gorm.DB, baseLog *logger.Logger) IndividualRepo {
	return &individualRepo{db: db, log: baseLog.With("repo", "IndividualRepo")}
}

func (r *individualRepo) Create(dbc dbctx.Context, rows []*domain.Individual) ([]*domain.Individual, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.Individual{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *individualRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Individual, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Individual
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

func (r *individualRepo) GetByNames(dbc dbctx.Context, names []string) ([]*domain.Individual, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Individual
	if len(names) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("name IN ?", names).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
