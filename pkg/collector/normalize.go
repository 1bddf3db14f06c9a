package collector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zigsight/zigsight/pkg"
)

// devicePayload covers the telemetry fields zigbee2mqtt publishes per device,
// including the naming variants seen across firmware versions.
type devicePayload struct {
	LinkQuality    *int            `json:"linkquality"`
	LinkQualityAlt *int            `json:"link_quality"`
	Battery        *float64        `json:"battery"`
	BatteryAlt     *float64        `json:"battery_percent"`
	Voltage        *float64        `json:"voltage"`
	LastSeen       json.RawMessage `json:"last_seen"`
}

// bridgeDevice is one entry of the zigbee2mqtt bridge/devices list.
type bridgeDevice struct {
	IEEEAddress  string `json:"ieee_address"`
	FriendlyName string `json:"friendly_name"`
	Type         string `json:"type"`
	Parent       string `json:"parent,omitempty"`
}

// normalizeSnapshot converts one device telemetry payload into a metric
// snapshot. Unknown fields are ignored; a payload with no recognized metric
// still yields a snapshot so the device registers as seen.
func normalizeSnapshot(payload []byte, now time.Time) (pkg.MetricSnapshot, error) {
	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return pkg.MetricSnapshot{}, fmt.Errorf("failed to parse device payload: %w", err)
	}

	snap := pkg.MetricSnapshot{
		Timestamp: now,
		LastSeen:  now,
	}

	if p.LinkQuality != nil {
		snap.LinkQuality = clampLinkQuality(*p.LinkQuality)
	} else if p.LinkQualityAlt != nil {
		snap.LinkQuality = clampLinkQuality(*p.LinkQualityAlt)
	}

	if p.Battery != nil {
		snap.Battery = clampBattery(*p.Battery)
	} else if p.BatteryAlt != nil {
		snap.Battery = clampBattery(*p.BatteryAlt)
	}

	snap.Voltage = p.Voltage

	if ts, ok := parseLastSeen(p.LastSeen); ok {
		snap.LastSeen = ts
	}

	return snap, nil
}

func clampLinkQuality(lq int) *int {
	if lq < 0 {
		lq = 0
	} else if lq > 255 {
		lq = 255
	}
	return &lq
}

func clampBattery(pct float64) *float64 {
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	return &pct
}

// parseLastSeen accepts the last_seen variants zigbee2mqtt can be configured
// to emit: ISO 8601 string or epoch milliseconds.
func parseLastSeen(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}

	return time.Time{}, false
}

// normalizeDeviceList converts the bridge/devices payload into device info
// records. The coordinator entry has no friendly telemetry topic but is kept
// so the topology has a root.
func normalizeDeviceList(payload []byte, now time.Time) ([]pkg.DeviceInfo, error) {
	var devices []bridgeDevice
	if err := json.Unmarshal(payload, &devices); err != nil {
		return nil, fmt.Errorf("failed to parse device list: %w", err)
	}

	infos := make([]pkg.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.IEEEAddress == "" {
			continue
		}
		infos = append(infos, pkg.DeviceInfo{
			DeviceID:     d.IEEEAddress,
			FriendlyName: d.FriendlyName,
			Type:         normalizeDeviceType(d.Type),
			ParentID:     d.Parent,
			FirstSeen:    now,
		})
	}
	return infos, nil
}

func normalizeDeviceType(t string) string {
	switch strings.ToLower(t) {
	case "coordinator":
		return "coordinator"
	case "router":
		return "router"
	case "enddevice", "end_device":
		return "end_device"
	default:
		return "unknown"
	}
}
