package analytics

import (
	"time"
)

const lastSeenWarningAge = time.Hour

// BatteryDrainWarning reports whether the battery trend indicates drain
// faster than the configured threshold. The comparison is strict: a trend of
// exactly the negated threshold does not warn. An absent trend never warns.
func (e *Engine) BatteryDrainWarning(trend *float64) bool {
	if trend == nil {
		return false
	}
	return *trend < -e.cfg.BatteryDrainThreshold
}

// ConnectivityWarning reports whether the device reconnects too often or has
// not been heard from for over an hour.
func (e *Engine) ConnectivityWarning(reconnectRate float64, lastSeen time.Time, now time.Time) bool {
	if reconnectRate >= e.cfg.ReconnectRateThreshold {
		return true
	}
	if !lastSeen.IsZero() && now.Sub(lastSeen) > lastSeenWarningAge {
		return true
	}
	return false
}
