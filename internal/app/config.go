package app

import (
	"strings"

	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/utils"
)

type Config struct {
	PublicBaseURL     string
	ModelRegistryPath string
	Environment       string
	Version           string
}

func LoadConfig(log *logger.Logger) Config {
	publicBaseURL := strings.TrimRight(utils.GetEnv("PUBLIC_BASE_URL", "http://localhost:8080", log), "/")
	registryPath := utils.GetEnv("MODEL_REGISTRY_PATH", "configs/models.yaml", log)
	environment := utils.GetEnv("APP_ENV", "development", log)
	version := utils.GetEnv("APP_VERSION", "dev", log)
	return Config{
		PublicBaseURL:     publicBaseURL,
		ModelRegistryPath: registryPath,
		Environment:       environment,
		Version:           version,
	}
}
