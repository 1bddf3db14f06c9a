package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/logx"
)

// RouterSource fetches the neighboring access-point list from a router's HTTP
// API. The endpoint must return JSON, either a bare array of access points or
// the wrapped form {"access_points": [...]}.
type RouterSource struct {
	logger *logx.Logger
	url    string
	apiKey string
	client *http.Client
}

// NewRouterSource creates a router API scan source.
func NewRouterSource(url, apiKey string, logger *logx.Logger) *RouterSource {
	return &RouterSource{
		logger: logger,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Scan fetches and decodes the router's access-point list.
func (r *RouterSource) Scan(ctx context.Context) ([]pkg.AccessPoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build router request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("router scan request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("router scan returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read router response: %w", err)
	}

	var aps []pkg.AccessPoint
	if err := json.Unmarshal(body, &aps); err == nil {
		r.logger.Debug("Router scan completed", "access_points", len(aps))
		return aps, nil
	}

	var wrapped manualFile
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse router response: %w", err)
	}
	r.logger.Debug("Router scan completed", "access_points", len(wrapped.AccessPoints))
	return wrapped.AccessPoints, nil
}

// Name implements Source.
func (r *RouterSource) Name() string { return "router_api" }
