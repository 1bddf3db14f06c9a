package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/logx"
)

// ManualSource serves a pre-captured access-point list, either set directly
// (API submissions) or loaded from a JSON file exported from a router.
type ManualSource struct {
	logger *logx.Logger
	path   string

	mu  sync.RWMutex
	aps []pkg.AccessPoint
}

// manualFile matches both bare-array exports and the wrapped form
// {"access_points": [...]}.
type manualFile struct {
	AccessPoints []pkg.AccessPoint `json:"access_points"`
}

// NewManualSource creates a manual source. path may be empty when the list
// is only ever supplied via Set.
func NewManualSource(path string, logger *logx.Logger) *ManualSource {
	return &ManualSource{
		logger: logger,
		path:   path,
	}
}

// Set replaces the served access-point list.
func (m *ManualSource) Set(aps []pkg.AccessPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aps = append(m.aps[:0:0], aps...)
}

// Scan returns the configured list, reloading the backing file when one is
// configured so edited exports take effect without a restart.
func (m *ManualSource) Scan(_ context.Context) ([]pkg.AccessPoint, error) {
	if m.path != "" {
		aps, err := m.loadFile()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.aps = aps
		m.mu.Unlock()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]pkg.AccessPoint, len(m.aps))
	copy(out, m.aps)
	return out, nil
}

// Name implements Source.
func (m *ManualSource) Name() string { return "manual" }

func (m *ManualSource) loadFile() ([]pkg.AccessPoint, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan file %s: %w", m.path, err)
	}

	var aps []pkg.AccessPoint
	if err := json.Unmarshal(data, &aps); err == nil {
		return aps, nil
	}

	var wrapped manualFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse scan file %s: %w", m.path, err)
	}
	return wrapped.AccessPoints, nil
}
