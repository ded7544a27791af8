package app

import (
	"github.com/gin-gonic/gin"

	apphttp "github.com/openwild/sightline-backend/internal/http"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

func wireRouter(log *logger.Logger, handlerset Handlers) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:                       log,
		HealthHandler:             handlerset.Health,
		AssetGroupSightingHandler: handlerset.AssetGroupSighting,
		SightingHandler:           handlerset.Sighting,
	})
}
