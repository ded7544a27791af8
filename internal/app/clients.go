package app

import (
	"fmt"
	"os"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/openwild/sightline-backend/internal/clients/redis"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/platform/edm"
	"github.com/openwild/sightline-backend/internal/platform/modelreg"
	"github.com/openwild/sightline-backend/internal/platform/vision"
)

type Clients struct {
	Vision vision.Client
	EDM    edm.Client
	Cache  *goredis.Client
	Models *modelreg.Registry
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis is optional; without it the collaboration cache is skipped.
	var cache *goredis.Client
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "" {
		c, err := redisclient.NewCache(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis cache: %w", err)
		}
		cache = c
	}

	visionClient, err := vision.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init vision client: %w", err)
	}

	edmClient, err := edm.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init edm client: %w", err)
	}

	models, err := modelreg.Load(cfg.ModelRegistryPath)
	if err != nil {
		return Clients{}, fmt.Errorf("load model registry: %w", err)
	}

	return Clients{
		Vision: visionClient,
		EDM:    edmClient,
		Cache:  cache,
		Models: models,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}
