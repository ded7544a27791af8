package app

import (
	"github.com/openwild/sightline-backend/internal/data/repos"
	httpH "github.com/openwild/sightline-backend/internal/http/handlers"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
)

type Handlers struct {
	Health             *httpH.HealthHandler
	AssetGroupSighting *httpH.AssetGroupSightingHandler
	Sighting           *httpH.SightingHandler
}

func wireHandlers(log *logger.Logger, reposet repos.Set, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:             httpH.NewHealthHandler(),
		AssetGroupSighting: httpH.NewAssetGroupSightingHandler(log, reposet.AssetGroupSightings, serviceset.Detection, serviceset.Commit),
		Sighting:           httpH.NewSightingHandler(log, reposet.Sightings, serviceset.Identification),
	}
}
