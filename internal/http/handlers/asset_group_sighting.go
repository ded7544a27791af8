package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/http/response"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/platform/vision"
	"github.com/openwild/sightline-backend/internal/services"
)

type AssetGroupSightingHandler struct {
	log         *logger.Logger
	groupSights repos.AssetGroupSightingRepo
	detection   services.DetectionService
	commit      services.CommitService
}

func NewAssetGroupSightingHandler(
	baseLog *logger.Logger,
	groupSights repos.AssetGroupSightingRepo,
	detection services.DetectionService,
	commit services.CommitService,
) *AssetGroupSightingHandler {
	return &AssetGroupSightingHandler{
		log:         baseLog.With("handler", "AssetGroupSightingHandler"),
		groupSights: groupSights,
		detection:   detection,
		commit:      commit,
	}
}

func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

func jobID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Query("job_id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job_id: %w", err)
	}
	return id, nil
}

type createAssetGroupSightingRequest struct {
	AssetGroupID uuid.UUID             `json:"asset_group_id" binding:"required"`
	Config       domain.SightingConfig `json:"config"`
}

// POST /api/v1/asset-groups/sightings
func (h *AssetGroupSightingHandler) Create(c *gin.Context) {
	var req createAssetGroupSightingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	row, err := h.detection.CreateAssetGroupSighting(c.Request.Context(), req.AssetGroupID, &req.Config)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}

	if row.Stage == domain.AGSStageDetection {
		// Dispatch outlives the request; outcomes land in the ledger and the
		// audit log.
		go func(id uuid.UUID) {
			if err := h.detection.StartDetection(context.Background(), id); err != nil {
				h.log.Error("Background detection dispatch failed", "ags_id", id, "error", err)
			}
		}(row.ID)
	}
	response.RespondOK(c, row)
}

// GET /api/v1/asset-groups/sightings/:id
func (h *AssetGroupSightingHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	row, err := h.groupSights.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("asset group sighting %s not found", id))
		return
	}
	jobs, err := row.DecodeJobs()
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"id":                 row.ID,
		"stage":              row.Stage,
		"jobs":               jobs,
		"detection_attempts": row.DetectionAttempts,
	})
}

// POST /api/v1/asset-groups/sightings/:id/vision-callback?job_id=
func (h *AssetGroupSightingHandler) VisionCallback(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job, err := jobID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var payload vision.DetectionCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.RespondError(c, http.StatusBadRequest, "malformed_callback", err)
		return
	}
	if err := h.detection.HandleDetected(c.Request.Context(), id, job, &payload); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"accepted": true})
}

// POST /api/v1/asset-groups/sightings/:id/rerun-detection
func (h *AssetGroupSightingHandler) RerunDetection(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.detection.RerunDetection(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rerunning": true})
}

// POST /api/v1/asset-groups/sightings/:id/commit
func (h *AssetGroupSightingHandler) Commit(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	sighting, err := h.commit.Commit(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sighting_id": sighting.ID, "stage": sighting.Stage})
}
