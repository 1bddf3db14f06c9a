package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/logx"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveResult(t *testing.T) {
	m := New(logx.NewLogger("error", "metrics-test"))

	trend := -2.5
	m.ObserveResult(pkg.DeviceAnalyticsResult{
		DeviceID:            "0xabc",
		ReconnectRate:       1.5,
		BatteryTrend:        &trend,
		HealthScore:         86.6,
		BatteryDrainWarning: false,
		ConnectivityWarning: true,
	})
	m.ObservePass(1, 30*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `zigsight_device_health_score{device_id="0xabc"} 86.6`)
	assert.Contains(t, body, `zigsight_device_reconnect_rate{device_id="0xabc"} 1.5`)
	assert.Contains(t, body, `zigsight_device_battery_trend{device_id="0xabc"} -2.5`)
	assert.Contains(t, body, `zigsight_device_connectivity_warning{device_id="0xabc"} 1`)
	assert.Contains(t, body, `zigsight_device_battery_drain_warning{device_id="0xabc"} 0`)
	assert.Contains(t, body, `zigsight_devices_tracked 1`)
	assert.Contains(t, body, `zigsight_analytics_passes_total 1`)
}

func TestNilTrendRemovesSeries(t *testing.T) {
	m := New(logx.NewLogger("error", "metrics-test"))

	trend := -1.0
	m.ObserveResult(pkg.DeviceAnalyticsResult{DeviceID: "0xabc", BatteryTrend: &trend})
	m.ObserveResult(pkg.DeviceAnalyticsResult{DeviceID: "0xabc", BatteryTrend: nil})

	body := scrape(t, m)
	assert.NotContains(t, body, `zigsight_device_battery_trend{device_id="0xabc"}`)
}

func TestForgetDevice(t *testing.T) {
	m := New(logx.NewLogger("error", "metrics-test"))

	m.ObserveResult(pkg.DeviceAnalyticsResult{DeviceID: "0xgone", HealthScore: 50})
	m.ForgetDevice("0xgone")

	body := scrape(t, m)
	assert.NotContains(t, body, `device_id="0xgone"`)
}
