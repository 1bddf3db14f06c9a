package pkg

import (
	"time"
)

// MetricSnapshot is one normalized observation for one device. Collectors
// translate vendor-specific payloads into this shape before anything else
// sees them.
type MetricSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	LinkQuality *int      `json:"link_quality,omitempty"` // 0-255, nil when not reported
	Battery     *float64  `json:"battery,omitempty"`      // percent 0-100, nil when not reported
	Voltage     *float64  `json:"voltage,omitempty"`      // millivolts, informational only
	LastSeen    time.Time `json:"last_seen"`
}

// DeviceInfo carries the non-metric identity of a device as reported by a
// collector.
type DeviceInfo struct {
	DeviceID     string    `json:"device_id"`
	FriendlyName string    `json:"friendly_name"`
	Type         string    `json:"type"` // coordinator, router, end_device
	ParentID     string    `json:"parent_id,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
}

// DeviceAnalyticsResult is the output of one analytics pass for one device.
// Absent statistics stay nil; they are never coerced to zero.
type DeviceAnalyticsResult struct {
	DeviceID            string    `json:"device_id"`
	ReconnectRate       float64   `json:"reconnect_rate"`           // events per hour, >= 0
	BatteryTrend        *float64  `json:"battery_trend,omitempty"`  // percent per hour, nil when undefined
	HealthScore         float64   `json:"health_score"`             // 0-100
	BatteryDrainWarning bool      `json:"battery_drain_warning"`
	ConnectivityWarning bool      `json:"connectivity_warning"`
	ComputedAt          time.Time `json:"computed_at"`
}

// AccessPoint is one detected Wi-Fi interferer, normalized by a scan source.
type AccessPoint struct {
	Channel int     `json:"channel"` // 1-14
	RSSI    float64 `json:"rssi"`    // dBm, typically -30 to -90
	SSID    string  `json:"ssid,omitempty"`
}

// RecommendationResult is one channel recommendation computed from an
// access-point list. Scores are the clamped presentation values; ranking is
// done on the unclamped raw sums before this record is built.
type RecommendationResult struct {
	RecommendedChannel int             `json:"recommended_channel"`
	Scores             map[int]float64 `json:"scores"`
	Explanation        string          `json:"explanation"`
	SkippedAPs         []string        `json:"skipped_aps,omitempty"` // diagnostics for malformed records
	Timestamp          time.Time       `json:"timestamp"`
}

// EventType identifies a system event.
type EventType string

const (
	EventDeviceUpdate      EventType = "device_update"
	EventDeviceReconnect   EventType = "device_reconnect"
	EventWarningRaised     EventType = "warning_raised"
	EventWarningCleared    EventType = "warning_cleared"
	EventRecommendation    EventType = "recommendation"
	EventCollectorStateSet EventType = "collector_state"
)

// Event is a timestamped system event kept in the telemetry store and
// exposed over the API.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	DeviceID  string                 `json:"device_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
