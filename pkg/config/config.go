package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full zigsightd configuration, loaded once at startup.
// There is no runtime reconfiguration; a bad config fails the daemon before
// any analytics pass runs.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Analytics AnalyticsConfig `yaml:"analytics"`
	Store     StoreConfig     `yaml:"store"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Poller    PollerConfig    `yaml:"poller"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// HealthWeights are the health-score component weights. They must sum to 1.0.
type HealthWeights struct {
	LinkQuality   float64 `yaml:"link_quality"`
	Battery       float64 `yaml:"battery"`
	ReconnectRate float64 `yaml:"reconnect_rate"`
	Connectivity  float64 `yaml:"connectivity"`
}

// AnalyticsConfig holds the thresholds and weights for the analytics engine.
type AnalyticsConfig struct {
	ReconnectRateWindowHours int           `yaml:"reconnect_rate_window_hours"`
	BatteryDrainThreshold    float64       `yaml:"battery_drain_threshold"` // percent per hour
	MinBatteryForTrend       float64       `yaml:"min_battery_for_trend"`   // percent
	ReconnectRateThreshold   float64       `yaml:"reconnect_rate_threshold"` // events per hour
	Weights                  HealthWeights `yaml:"health_score_weights"`
}

// StoreConfig bounds the in-memory history store.
type StoreConfig struct {
	RetentionDays       int    `yaml:"retention_days"`
	MaxEntriesPerDevice int    `yaml:"max_entries_per_device"`
	PersistPath         string `yaml:"persist_path"` // bbolt file, empty disables persistence
}

// MQTTConfig configures the zigbee2mqtt collector.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// ScannerConfig selects and configures the Wi-Fi scan source.
type ScannerConfig struct {
	Mode         string `yaml:"mode"` // manual, host_scan, router_api
	ManualFile   string `yaml:"manual_file"`
	Interface    string `yaml:"interface"`
	RouterURL    string `yaml:"router_url"`
	RouterAPIKey string `yaml:"router_api_key"`
}

// PollerConfig sets the analytics and cleanup cadence.
type PollerConfig struct {
	AnalyticsIntervalS int `yaml:"analytics_interval_s"`
	CleanupIntervalS   int `yaml:"cleanup_interval_s"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	AuthKey string `yaml:"auth_key"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Analytics: AnalyticsConfig{
			ReconnectRateWindowHours: 24,
			BatteryDrainThreshold:    10.0,
			MinBatteryForTrend:       20.0,
			ReconnectRateThreshold:   5.0,
			Weights: HealthWeights{
				LinkQuality:   0.30,
				Battery:       0.20,
				ReconnectRate: 0.30,
				Connectivity:  0.20,
			},
		},
		Store: StoreConfig{
			RetentionDays:       30,
			MaxEntriesPerDevice: 1000,
		},
		MQTT: MQTTConfig{
			Enabled:     true,
			Broker:      "localhost",
			Port:        1883,
			ClientID:    "zigsightd",
			TopicPrefix: "zigbee2mqtt",
			QoS:         0,
		},
		Scanner: ScannerConfig{
			Mode:      "manual",
			Interface: "wlan0",
		},
		Poller: PollerConfig{
			AnalyticsIntervalS: 60,
			CleanupIntervalS:   3600,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    8090,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// Env overrides for credentials, so they stay out of the config file.
	if v := os.Getenv("ZIGSIGHT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("ZIGSIGHT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("ZIGSIGHT_API_AUTH_KEY"); v != "" {
		cfg.API.AuthKey = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configuration the engine cannot run with.
func (c *Config) Validate() error {
	a := &c.Analytics

	if a.ReconnectRateWindowHours < 1 {
		return fmt.Errorf("reconnect_rate_window_hours must be >= 1, got %d", a.ReconnectRateWindowHours)
	}
	if a.BatteryDrainThreshold <= 0 {
		return fmt.Errorf("battery_drain_threshold must be positive, got %g", a.BatteryDrainThreshold)
	}
	if a.MinBatteryForTrend < 0 || a.MinBatteryForTrend > 100 {
		return fmt.Errorf("min_battery_for_trend must be within 0-100, got %g", a.MinBatteryForTrend)
	}
	if a.ReconnectRateThreshold <= 0 {
		return fmt.Errorf("reconnect_rate_threshold must be positive, got %g", a.ReconnectRateThreshold)
	}

	w := a.Weights
	for name, v := range map[string]float64{
		"link_quality":   w.LinkQuality,
		"battery":        w.Battery,
		"reconnect_rate": w.ReconnectRate,
		"connectivity":   w.Connectivity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("health score weight %s must be within 0-1, got %g", name, v)
		}
	}
	sum := w.LinkQuality + w.Battery + w.ReconnectRate + w.Connectivity
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("health score weights must sum to 1.0, got %g", sum)
	}

	if c.Store.RetentionDays < 1 {
		return fmt.Errorf("store retention_days must be >= 1, got %d", c.Store.RetentionDays)
	}
	if c.Store.MaxEntriesPerDevice < 1 {
		return fmt.Errorf("store max_entries_per_device must be >= 1, got %d", c.Store.MaxEntriesPerDevice)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker must be set when mqtt is enabled")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt port must be within 1-65535, got %d", c.MQTT.Port)
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
		}
	}

	switch c.Scanner.Mode {
	case "manual", "host_scan", "router_api":
	default:
		return fmt.Errorf("scanner mode must be manual, host_scan or router_api, got %q", c.Scanner.Mode)
	}
	if c.Scanner.Mode == "router_api" && c.Scanner.RouterURL == "" {
		return fmt.Errorf("scanner router_url must be set for router_api mode")
	}

	if c.Poller.AnalyticsIntervalS < 1 {
		return fmt.Errorf("poller analytics_interval_s must be >= 1, got %d", c.Poller.AnalyticsIntervalS)
	}
	if c.Poller.CleanupIntervalS < 1 {
		return fmt.Errorf("poller cleanup_interval_s must be >= 1, got %d", c.Poller.CleanupIntervalS)
	}

	return nil
}

// RetentionAge returns the store retention window as a duration.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.Store.RetentionDays) * 24 * time.Hour
}
