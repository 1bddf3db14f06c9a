package analytics

import (
	"time"

	"github.com/zigsight/zigsight/pkg"
)

// Neutral midpoint used when a device does not report link quality or
// battery. Absence of a metric is not evidence of a problem, so the
// component contributes neither reward nor penalty; its weight is kept.
const neutralComponentScore = 50.0

const (
	connectivityFreshWindow = 5 * time.Minute
	connectivityStaleWindow = 60 * time.Minute
)

// HealthScore aggregates the current snapshot and reconnect rate into one
// weighted 0-100 score.
func (e *Engine) HealthScore(latest pkg.MetricSnapshot, reconnectRate float64, now time.Time) float64 {
	linkScore := neutralComponentScore
	if latest.LinkQuality != nil {
		linkScore = clamp(float64(*latest.LinkQuality)/255.0*100.0, 0, 100)
	}

	batteryScore := neutralComponentScore
	if latest.Battery != nil {
		batteryScore = clamp(*latest.Battery, 0, 100)
	}

	reconnectScore := clamp(100.0-reconnectRate*10.0, 0, 100)
	connectivityScore := connectivityScore(latest.LastSeen, now)

	w := e.cfg.Weights
	total := linkScore*w.LinkQuality +
		batteryScore*w.Battery +
		reconnectScore*w.ReconnectRate +
		connectivityScore*w.Connectivity

	return clamp(total, 0, 100)
}

// connectivityScore maps time since last contact to 0-100: full score within
// 5 minutes, zero past an hour, linear in between. A device that was never
// seen scores zero.
func connectivityScore(lastSeen time.Time, now time.Time) float64 {
	if lastSeen.IsZero() {
		return 0
	}

	elapsed := now.Sub(lastSeen)
	if elapsed <= connectivityFreshWindow {
		return 100
	}
	if elapsed >= connectivityStaleWindow {
		return 0
	}

	span := (connectivityStaleWindow - connectivityFreshWindow).Seconds()
	return 100 - (elapsed-connectivityFreshWindow).Seconds()/span*100
}
