package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

const collaboratorCacheTTL = 30 * time.Second

// CollaborationService resolves which catalog owners a given user may match
// against. Approved collaborations widen visibility in both directions; the
// resolved owner set always includes the viewer themselves.
type CollaborationService interface {
	VisibleOwnerIDs(dbc dbctx.Context, viewerID uuid.UUID) ([]uuid.UUID, error)
}

type collaborationService struct {
	log            *logger.Logger
	collaborations repos.CollaborationRepo
	cache          *redis.Client
}

func NewCollaborationService(baseLog *logger.Logger, collaborations repos.CollaborationRepo, cache *redis.Client) CollaborationService {
	return &collaborationService{
		log:            baseLog.With("service", "CollaborationService"),
		collaborations: collaborations,
		cache:          cache,
	}
}

func (s *collaborationService) VisibleOwnerIDs(dbc dbctx.Context, viewerID uuid.UUID) ([]uuid.UUID, error) {
	key := "collab:visible:" + viewerID.String()
	if s.cache != nil {
		if raw, err := s.cache.Get(dbc.Ctx, key).Bytes(); err == nil {
			var cached []uuid.UUID
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	ownerIDs, err := s.collaborations.GetApprovedOwnerIDsForViewer(dbc, viewerID)
	if err != nil {
		return nil, err
	}

	out := make([]uuid.UUID, 0, len(ownerIDs)+1)
	out = append(out, viewerID)
	for _, id := range ownerIDs {
		if id != viewerID {
			out = append(out, id)
		}
	}

	if s.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(dbc.Ctx, key, raw, collaboratorCacheTTL).Err(); err != nil {
				s.log.Warn("Failed to cache collaborator set", "viewer_id", viewerID, "error", err)
			}
		}
	}
	return out, nil
}
