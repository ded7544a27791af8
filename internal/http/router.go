package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/openwild/sightline-backend/internal/http/handlers"
	httpMW "github.com/openwild/sightline-backend/internal/http/middleware"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler             *httpH.HealthHandler
	AssetGroupSightingHandler *httpH.AssetGroupSightingHandler
	SightingHandler           *httpH.SightingHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("sightline-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api/v1")
	{
		if cfg.AssetGroupSightingHandler != nil {
			api.POST("/asset-groups/sightings", cfg.AssetGroupSightingHandler.Create)
			api.GET("/asset-groups/sightings/:id", cfg.AssetGroupSightingHandler.Get)
			api.POST("/asset-groups/sightings/:id/vision-callback", cfg.AssetGroupSightingHandler.VisionCallback)
			api.POST("/asset-groups/sightings/:id/rerun-detection", cfg.AssetGroupSightingHandler.RerunDetection)
			api.POST("/asset-groups/sightings/:id/commit", cfg.AssetGroupSightingHandler.Commit)
		}

		if cfg.SightingHandler != nil {
			api.GET("/sightings/:id", cfg.SightingHandler.Get)
			api.POST("/sightings/:id/vision-callback", cfg.SightingHandler.VisionCallback)
			api.POST("/sightings/:id/rerun-identification", cfg.SightingHandler.RerunIdentification)
			api.GET("/sightings/:id/id-result", cfg.SightingHandler.IDResult)
		}
	}

	return r
}
