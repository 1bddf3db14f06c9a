package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/telem"
)

// Engine derives operational health signals from a device's metric history:
// reconnect rate, battery trend, an aggregate health score and warning flags.
// It only reads the store; ingestion owns all writes.
type Engine struct {
	cfg    config.AnalyticsConfig
	store  *telem.Store
	logger *logx.Logger
}

// NewEngine creates an analytics engine. Invalid thresholds or weights fail
// here, before any analytics pass runs.
func NewEngine(cfg config.AnalyticsConfig, store *telem.Store, logger *logx.Logger) (*Engine, error) {
	if cfg.ReconnectRateWindowHours < 1 {
		return nil, fmt.Errorf("reconnect rate window must be >= 1 hour, got %d", cfg.ReconnectRateWindowHours)
	}
	if cfg.BatteryDrainThreshold <= 0 {
		return nil, fmt.Errorf("battery drain threshold must be positive, got %g", cfg.BatteryDrainThreshold)
	}
	if cfg.ReconnectRateThreshold <= 0 {
		return nil, fmt.Errorf("reconnect rate threshold must be positive, got %g", cfg.ReconnectRateThreshold)
	}

	sum := cfg.Weights.LinkQuality + cfg.Weights.Battery + cfg.Weights.ReconnectRate + cfg.Weights.Connectivity
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("health score weights must sum to 1.0, got %g", sum)
	}

	return &Engine{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}, nil
}

// Analyze runs a full analytics pass for one device against its current
// history. Results are computed fresh on every call and never persisted.
func (e *Engine) Analyze(deviceID string) pkg.DeviceAnalyticsResult {
	now := time.Now()
	history := e.store.History(deviceID)

	rate := e.ReconnectRate(history, e.cfg.ReconnectRateWindowHours, now)
	trend := e.BatteryTrend(history, e.cfg.ReconnectRateWindowHours, now)

	latest, _ := e.store.Latest(deviceID)
	score := e.HealthScore(latest, rate, now)

	result := pkg.DeviceAnalyticsResult{
		DeviceID:            deviceID,
		ReconnectRate:       rate,
		BatteryTrend:        trend,
		HealthScore:         score,
		BatteryDrainWarning: e.BatteryDrainWarning(trend),
		ConnectivityWarning: e.ConnectivityWarning(rate, latest.LastSeen, now),
		ComputedAt:          now,
	}

	e.logger.Debug("Analytics pass completed",
		"device_id", deviceID,
		"reconnect_rate", rate,
		"health_score", score,
		"history_entries", len(history),
	)

	return result
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
