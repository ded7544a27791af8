package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openwild/sightline-backend/internal/pkg/httpx"
	"github.com/openwild/sightline-backend/internal/pkg/logger"
	"github.com/openwild/sightline-backend/internal/utils"
)

// Client dispatches detection and identification work to the vision service.
// Dispatch is fire-and-forget: results arrive later on the callback URL baked
// into the request the caller builds.
type Client interface {
	StartDetection(ctx context.Context, req DetectionRequest) error
	StartIdentification(ctx context.Context, req IdentificationRequest) error
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	baseURL := strings.TrimRight(utils.GetEnv("VISION_BASE_URL", "", log), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("missing VISION_BASE_URL")
	}

	timeoutSec := 30
	if v := utils.GetEnv("VISION_TIMEOUT_SECONDS", "", nil); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &client{
		log:        log.With("service", "VisionClient"),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

// HTTPError is a non-2xx response from the vision service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("vision http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// IsRetryable reports whether a dispatch error is worth another attempt:
// transport failures and 408/429/5xx responses are, anything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if httpx.IsRetryableError(err) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// A classified non-retryable status.
		return false
	}
	// Unclassified errors are treated as transport-level.
	return true
}

func (c *client) StartDetection(ctx context.Context, req DetectionRequest) error {
	return c.post(ctx, "/api/engine/detect", req)
}

func (c *client) StartIdentification(ctx context.Context, req IdentificationRequest) error {
	return c.post(ctx, "/api/engine/query", req)
}

func (c *client) post(ctx context.Context, path string, body any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("Vision dispatch rejected", "path", path, "status", resp.StatusCode)
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}
