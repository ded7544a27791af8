package catalog

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type CollaborationRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Collaboration) ([]*domain.Collaboration, error)
	// GetApprovedOwnerIDsForViewer returns the owners whose data the viewer
	// may see through an approved collaboration.
	GetApprovedOwnerIDsForViewer(dbc dbctx.Context, viewerID uuid.UUID) ([]uuid.UUID, error)
}

type collaborationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCollaborationRepo(db *gorm.DB, baseLog *logger.Logger) CollaborationRepo {
	return &collaborationRepo{db: db, log: baseLog.With("repo", "CollaborationRepo")}
}

func (r *collaborationRepo) Create(dbc dbctx.Context, rows []*domain.Collaboration) ([]*domain.Collaboration, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*domain.Collaboration{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *collaborationRepo) GetApprovedOwnerIDsForViewer(dbc dbctx.Context, viewerID uuid.UUID) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []uuid.UUID
	err := transaction.WithContext(dbc.Ctx).
		Model(&domain.Collaboration{}).
		Where("viewer_id = ? AND state = ?", viewerID, domain.CollaborationStateApproved).
		Pluck("owner_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
