package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openwild/sightline-backend/internal/data/repos"
	"github.com/openwild/sightline-backend/internal/http/response"
	"github.com/openwild/sightline-backend/internal/pkg/dbctx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/platform/vision"
	"github.com/openwild/sightline-backend/internal/services"
)

type SightingHandler struct {
	log            *logger.Logger
	sightings      repos.SightingRepo
	identification services.IdentificationService
}

func NewSightingHandler(
	baseLog *logger.Logger,
	sightings repos.SightingRepo,
	identification services.IdentificationService,
) *SightingHandler {
	return &SightingHandler{
		log:            baseLog.With("handler", "SightingHandler"),
		sightings:      sightings,
		identification: identification,
	}
}

// GET /api/v1/sightings/:id
func (h *SightingHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	row, err := h.sightings.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("sighting %s not found", id))
		return
	}
	jobs, err := row.DecodeJobs()
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"id":    row.ID,
		"stage": row.Stage,
		"jobs":  jobs,
	})
}

// POST /api/v1/sightings/:id/vision-callback?job_id=
func (h *SightingHandler) VisionCallback(c *gin.Context) {
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
	var payload vision.IdentificationCallback
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.RespondError(c, http.StatusBadRequest, "malformed_callback", err)
		return
	}
	if err := h.identification.HandleIdentified(c.Request.Context(), id, job, &payload); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"accepted": true})
}

// POST /api/v1/sightings/:id/rerun-identification
func (h *SightingHandler) RerunIdentification(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := h.identification.RerunIdentification(c.Request.Context(), id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rerunning": true})
}

// GET /api/v1/sightings/:id/id-result
func (h *SightingHandler) IDResult(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	result, err := h.identification.GetIDResult(c.Request.Context(), id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"annotations": result})
}
