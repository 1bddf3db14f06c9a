package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/analytics"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/recommend"
	"github.com/zigsight/zigsight/pkg/scanner"
	"github.com/zigsight/zigsight/pkg/telem"
	"github.com/zigsight/zigsight/pkg/topology"
)

// Server exposes the analytics and recommendation engines over HTTP.
type Server struct {
	cfg       config.APIConfig
	store     *telem.Store
	analytics *analytics.Engine
	recommend *recommend.Engine
	scanner   scanner.Source
	topology  *topology.Builder
	logger    *logx.Logger

	healthOf  func() map[string]interface{}
	server    *http.Server
	startTime time.Time
}

// NewServer creates the API server. healthOf contributes component states to
// the health endpoint and may be nil.
func NewServer(
	cfg config.APIConfig,
	store *telem.Store,
	analyticsEngine *analytics.Engine,
	recommendEngine *recommend.Engine,
	scanSource scanner.Source,
	topo *topology.Builder,
	healthOf func() map[string]interface{},
	logger *logx.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		analytics: analyticsEngine,
		recommend: recommendEngine,
		scanner:   scanSource,
		topology:  topo,
		healthOf:  healthOf,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Handler builds the route table. Split from Start so tests can drive the
// mux without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/devices", s.authMiddleware(s.handleDevices))
	mux.HandleFunc("/api/devices/", s.authMiddleware(s.handleDevice))
	mux.HandleFunc("/api/analytics/overview", s.authMiddleware(s.handleOverview))
	mux.HandleFunc("/api/topology", s.authMiddleware(s.handleTopology))
	mux.HandleFunc("/api/recommendation", s.authMiddleware(s.handleRecommendation))
	mux.HandleFunc("/api/recommendation/history", s.authMiddleware(s.handleRecommendationHistory))
	mux.HandleFunc("/api/events", s.authMiddleware(s.handleEvents))
	mux.HandleFunc("/api/health", s.authMiddleware(s.handleHealth))

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("API server is disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("Starting API server", "address", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", "error", err)
		}
	}()

	return nil
}

// Shutdown stops the listener, draining in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// authMiddleware enforces the optional API key. Anonymous access is allowed
// when no key is configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authKey := r.URL.Query().Get("auth")
		if authKey == "" {
			authKey = r.Header.Get("X-API-Key")
		}

		if authKey != s.cfg.AuthKey {
			s.logger.Warn("Invalid authentication attempt", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// deviceSummary is one row of the device list response.
type deviceSummary struct {
	pkg.DeviceInfo
	LastSeen  time.Time                 `json:"last_seen,omitempty"`
	Analytics pkg.DeviceAnalyticsResult `json:"analytics"`
}

// handleDevices lists every tracked device with its current analytics.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := s.store.Devices()
	summaries := make([]deviceSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, s.summarize(id))
	}

	s.writeJSON(w, map[string]interface{}{
		"devices": summaries,
		"count":   len(summaries),
	})
}

// handleDevice serves one device, or its history under the /history suffix.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	deviceID, sub, _ := strings.Cut(rest, "/")
	if deviceID == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	if _, known := s.store.DeviceInfo(deviceID); !known && s.store.Count(deviceID) == 0 {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	switch sub {
	case "":
		s.writeJSON(w, s.summarize(deviceID))
	case "history":
		since := time.Time{}
		if hours := r.URL.Query().Get("hours"); hours != "" {
			h, err := strconv.Atoi(hours)
			if err != nil || h < 1 {
				http.Error(w, "Invalid hours parameter", http.StatusBadRequest)
				return
			}
			since = time.Now().Add(-time.Duration(h) * time.Hour)
		}
		history := s.store.Window(deviceID, since)
		s.writeJSON(w, map[string]interface{}{
			"device_id": deviceID,
			"history":   history,
			"count":     len(history),
		})
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleOverview aggregates fleet-wide analytics.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := s.store.Devices()

	var scoreSum float64
	var scored, drainWarnings, connWarnings int
	worst := struct {
		id    string
		score float64
	}{score: 101}

	for _, id := range ids {
		result := s.analytics.Analyze(id)
		scoreSum += result.HealthScore
		scored++
		if result.BatteryDrainWarning {
			drainWarnings++
		}
		if result.ConnectivityWarning {
			connWarnings++
		}
		if result.HealthScore < worst.score {
			worst.id = id
			worst.score = result.HealthScore
		}
	}

	overview := map[string]interface{}{
		"device_count":           len(ids),
		"battery_drain_warnings": drainWarnings,
		"connectivity_warnings":  connWarnings,
		"generated_at":           time.Now(),
	}
	if scored > 0 {
		overview["average_health_score"] = scoreSum / float64(scored)
		overview["worst_device"] = map[string]interface{}{
			"device_id":    worst.id,
			"health_score": worst.score,
		}
	}

	s.writeJSON(w, overview)
}

// handleTopology serves the current mesh graph.
func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.topology.Build())
}

// recommendationRequest optionally carries a caller-supplied scan instead of
// using the configured source.
type recommendationRequest struct {
	AccessPoints []pkg.AccessPoint `json:"access_points"`
}

// handleRecommendation computes a channel recommendation, from the request
// body's access points when given, otherwise from a fresh scan.
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var aps []pkg.AccessPoint

	if r.ContentLength != 0 {
		var req recommendationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		aps = req.AccessPoints
	}

	if aps == nil {
		scanned, err := s.scanner.Scan(r.Context())
		if err != nil {
			s.logger.Warn("Scan failed, recommending without interference data",
				"source", s.scanner.Name(), "error", err)
		}
		aps = scanned
	}

	result := s.recommend.Recommend(aps)

	s.store.AddEvent(pkg.Event{
		Timestamp: time.Now(),
		Type:      pkg.EventRecommendation,
		Data: map[string]interface{}{
			"recommended_channel": result.RecommendedChannel,
			"access_points":       len(aps),
		},
	})

	s.writeJSON(w, result)
}

// handleRecommendationHistory serves retained past recommendations.
func (s *Server) handleRecommendationHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history := s.recommend.History()
	s.writeJSON(w, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}

// handleEvents serves recent system events, newest last.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events := s.store.Events(time.Time{}, limit)
	s.writeJSON(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleHealth reports daemon liveness and component states.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": time.Since(s.startTime).Seconds(),
		"device_count":   len(s.store.Devices()),
		"timestamp":      time.Now(),
	}
	if s.healthOf != nil {
		for k, v := range s.healthOf() {
			health[k] = v
		}
	}

	s.writeJSON(w, health)
}

func (s *Server) summarize(deviceID string) deviceSummary {
	summary := deviceSummary{
		Analytics: s.analytics.Analyze(deviceID),
	}
	summary.DeviceInfo, _ = s.store.DeviceInfo(deviceID)
	summary.DeviceID = deviceID
	if snap, ok := s.store.Latest(deviceID); ok {
		summary.LastSeen = snap.LastSeen
	}
	return summary
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
