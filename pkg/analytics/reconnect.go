package analytics

import (
	"sort"
	"time"

	"github.com/zigsight/zigsight/pkg"
)

// A gap longer than this between consecutive snapshots counts as one
// disconnect/reconnect cycle.
const reconnectGap = 5 * time.Minute

// ReconnectRate computes reconnection events per hour over the trailing
// window ending at now. Fewer than two qualifying entries yield 0.0; the
// result is always a defined non-negative float.
func (e *Engine) ReconnectRate(history []pkg.MetricSnapshot, windowHours int, now time.Time) float64 {
	if windowHours < 1 || len(history) < 2 {
		return 0.0
	}

	windowStart := now.Add(-time.Duration(windowHours) * time.Hour)

	selected := make([]pkg.MetricSnapshot, 0, len(history))
	for _, snap := range history {
		if snap.Timestamp.Before(windowStart) || snap.Timestamp.After(now) {
			continue
		}
		selected = append(selected, snap)
	}
	if len(selected) < 2 {
		return 0.0
	}

	// Defensive: the store hands out sorted history, but the rate must not
	// depend on it.
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})

	events := 0
	for i := 1; i < len(selected); i++ {
		if selected[i].Timestamp.Sub(selected[i-1].Timestamp) > reconnectGap {
			events++
		}
	}

	return float64(events) / float64(windowHours)
}
