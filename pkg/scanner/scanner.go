package scanner

import (
	"context"
	"fmt"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
)

// Source produces a normalized access-point list. The scoring engine depends
// only on this interface, never on a concrete source.
type Source interface {
	// Scan returns the currently visible Wi-Fi access points.
	Scan(ctx context.Context) ([]pkg.AccessPoint, error)
	// Name identifies the source in logs and API responses.
	Name() string
}

// NewSource builds the scan source selected by configuration.
func NewSource(cfg config.ScannerConfig, logger *logx.Logger) (Source, error) {
	switch cfg.Mode {
	case "manual":
		return NewManualSource(cfg.ManualFile, logger), nil
	case "host_scan":
		return NewHostSource(cfg.Interface, logger), nil
	case "router_api":
		return NewRouterSource(cfg.RouterURL, cfg.RouterAPIKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown scanner mode %q", cfg.Mode)
	}
}
