package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/logx"
)

// Metrics exports analytics results to Prometheus. A private registry keeps
// Go runtime collectors out and makes tests independent of global state.
type Metrics struct {
	registry *prometheus.Registry
	logger   *logx.Logger
	server   *http.Server

	healthScore   *prometheus.GaugeVec
	reconnectRate *prometheus.GaugeVec
	batteryTrend  *prometheus.GaugeVec
	drainWarning  *prometheus.GaugeVec
	connWarning   *prometheus.GaugeVec
	deviceCount   prometheus.Gauge
	passTotal     prometheus.Counter
	passDuration  prometheus.Histogram
}

// New creates the metrics exporter.
func New(logger *logx.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		logger:   logger,
		healthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zigsight_device_health_score",
			Help: "Composite device health score, 0-100.",
		}, []string{"device_id"}),
		reconnectRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zigsight_device_reconnect_rate",
			Help: "Reconnect events per hour over the analysis window.",
		}, []string{"device_id"}),
		batteryTrend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zigsight_device_battery_trend",
			Help: "Battery level change in percent per hour; absent when undefined.",
		}, []string{"device_id"}),
		drainWarning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zigsight_device_battery_drain_warning",
			Help: "1 when the device battery drains abnormally fast.",
		}, []string{"device_id"}),
		connWarning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zigsight_device_connectivity_warning",
			Help: "1 when the device reconnects excessively or has gone silent.",
		}, []string{"device_id"}),
		deviceCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zigsight_devices_tracked",
			Help: "Number of devices with retained telemetry.",
		}),
		passTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zigsight_analytics_passes_total",
			Help: "Completed analytics passes.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zigsight_analytics_pass_duration_seconds",
			Help:    "Duration of one full analytics pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.healthScore,
		m.reconnectRate,
		m.batteryTrend,
		m.drainWarning,
		m.connWarning,
		m.deviceCount,
		m.passTotal,
		m.passDuration,
	)

	return m
}

// ObserveResult exports one device's analytics result.
func (m *Metrics) ObserveResult(result pkg.DeviceAnalyticsResult) {
	labels := prometheus.Labels{"device_id": result.DeviceID}

	m.healthScore.With(labels).Set(result.HealthScore)
	m.reconnectRate.With(labels).Set(result.ReconnectRate)

	if result.BatteryTrend != nil {
		m.batteryTrend.With(labels).Set(*result.BatteryTrend)
	} else {
		m.batteryTrend.Delete(labels)
	}

	m.drainWarning.With(labels).Set(boolGauge(result.BatteryDrainWarning))
	m.connWarning.With(labels).Set(boolGauge(result.ConnectivityWarning))
}

// ObservePass records a completed analytics pass over the given device count.
func (m *Metrics) ObservePass(devices int, elapsed time.Duration) {
	m.deviceCount.Set(float64(devices))
	m.passTotal.Inc()
	m.passDuration.Observe(elapsed.Seconds())
}

// ForgetDevice removes a pruned device's series so stale values stop being
// scraped.
func (m *Metrics) ForgetDevice(deviceID string) {
	labels := prometheus.Labels{"device_id": deviceID}
	m.healthScore.Delete(labels)
	m.reconnectRate.Delete(labels)
	m.batteryTrend.Delete(labels)
	m.drainWarning.Delete(labels)
	m.connWarning.Delete(labels)
}

// Handler returns the scrape handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the scrape listener in the background.
func (m *Metrics) Serve(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics listener failed", "error", err)
		}
	}()

	m.logger.Info("Metrics listener started", "port", port)
	return nil
}

// Shutdown stops the scrape listener.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
