package edm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openwild/sightline-backend/internal/domain"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/utils"
)

// Client talks to the legacy metadata store. Only the commit transition uses
// it: create a sighting there first, delete it again if any later commit step
// fails.
type Client interface {
	CreateSighting(ctx context.Context, cfg *domain.SightingConfig) (*CreateSightingResult, error)
	DeleteSighting(ctx context.Context, id uuid.UUID) error
}

type CreateSightingResult struct {
	ID           uuid.UUID   `json:"id"`
	Version      int64       `json:"version"`
	EncounterIDs []uuid.UUID `json:"encounter_ids"`
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	baseURL := strings.TrimRight(utils.GetEnv("EDM_BASE_URL", "", log), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing EDM_BASE_URL")
	}

	timeoutSec := 30
	if v := utils.GetEnv("EDM_TIMEOUT_SECONDS", "", nil); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("service", "EDMClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) CreateSighting(ctx context.Context, cfg *domain.SightingConfig) (*CreateSightingResult, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v0/org.ecocean.Occurrence", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("edm create sighting http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out CreateSightingResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("edm create sighting: decode response: %w", err)
	}
	if out.ID == uuid.Nil {
		return nil, fmt.Errorf("edm create sighting: response missing id")
	}
	return &out, nil
}

func (c *client) DeleteSighting(ctx context.Context, id uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v0/org.ecocean.Occurrence/"+id.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if (resp.StatusCode < 200 || resp.StatusCode > 299) && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("edm delete sighting http %d", resp.StatusCode)
	}
	return nil
}
