package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/analytics"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/recommend"
	"github.com/zigsight/zigsight/pkg/scanner"
	"github.com/zigsight/zigsight/pkg/telem"
	"github.com/zigsight/zigsight/pkg/topology"
)

func testServer(t *testing.T, apiCfg config.APIConfig) (*Server, *telem.Store, *scanner.ManualSource) {
	t.Helper()

	logger := logx.NewLogger("error", "api-test")
	store, err := telem.NewStore(100, 30*24*time.Hour)
	require.NoError(t, err)

	engine, err := analytics.NewEngine(config.Default().Analytics, store, logger)
	require.NoError(t, err)

	src := scanner.NewManualSource("", logger)

	srv := NewServer(
		apiCfg,
		store,
		engine,
		recommend.NewEngine(logger),
		src,
		topology.NewBuilder(store, logger),
		func() map[string]interface{} {
			return map[string]interface{}{"collector": "healthy"}
		},
		logger,
	)
	return srv, store, src
}

func seedDevice(store *telem.Store, id string, lq int, battery float64) {
	now := time.Now()
	store.SetDeviceInfo(pkg.DeviceInfo{DeviceID: id, FriendlyName: id, Type: "end_device", FirstSeen: now})
	store.Append(id, pkg.MetricSnapshot{
		Timestamp:   now,
		LinkQuality: &lq,
		Battery:     &battery,
		LastSeen:    now,
	})
}

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDevicesList(t *testing.T) {
	srv, store, _ := testServer(t, config.APIConfig{})
	seedDevice(store, "0xaaa", 200, 90)
	seedDevice(store, "0xbbb", 50, 15)

	rec := doRequest(t, srv, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count   int `json:"count"`
		Devices []struct {
			DeviceID  string `json:"device_id"`
			Analytics struct {
				HealthScore float64 `json:"health_score"`
			} `json:"analytics"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "0xaaa", resp.Devices[0].DeviceID)
	assert.Greater(t, resp.Devices[0].Analytics.HealthScore, resp.Devices[1].Analytics.HealthScore)
}

func TestDeviceNotFound(t *testing.T) {
	srv, _, _ := testServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/devices/0xmissing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceHistory(t *testing.T) {
	srv, store, _ := testServer(t, config.APIConfig{})
	seedDevice(store, "0xaaa", 120, 80)

	rec := doRequest(t, srv, http.MethodGet, "/api/devices/0xaaa/history?hours=24", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rec = doRequest(t, srv, http.MethodGet, "/api/devices/0xaaa/history?hours=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverview(t *testing.T) {
	srv, store, _ := testServer(t, config.APIConfig{})
	seedDevice(store, "0xaaa", 200, 90)

	rec := doRequest(t, srv, http.MethodGet, "/api/analytics/overview", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["device_count"])
	assert.Contains(t, resp, "average_health_score")
	assert.Contains(t, resp, "worst_device")
}

func TestRecommendationFromBody(t *testing.T) {
	srv, _, _ := testServer(t, config.APIConfig{})

	body := `{"access_points": [{"channel": 6, "rssi": -60}]}`
	rec := doRequest(t, srv, http.MethodPost, "/api/recommendation", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result pkg.RecommendationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 11, result.RecommendedChannel)
}

func TestRecommendationFromScanner(t *testing.T) {
	srv, _, src := testServer(t, config.APIConfig{})
	src.Set([]pkg.AccessPoint{{Channel: 1, RSSI: -50}})

	rec := doRequest(t, srv, http.MethodPost, "/api/recommendation", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result pkg.RecommendationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	// Channel 1 interference pushes the recommendation to the top of the band.
	assert.Equal(t, 25, result.RecommendedChannel)
}

func TestRecommendationHistory(t *testing.T) {
	srv, _, _ := testServer(t, config.APIConfig{})

	doRequest(t, srv, http.MethodPost, "/api/recommendation", `{"access_points": []}`)
	rec := doRequest(t, srv, http.MethodGet, "/api/recommendation/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestTopologyEndpoint(t *testing.T) {
	srv, store, _ := testServer(t, config.APIConfig{})
	seedDevice(store, "0xaaa", 120, 80)

	rec := doRequest(t, srv, http.MethodGet, "/api/topology", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var graph topology.Graph
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graph))
	assert.Len(t, graph.Nodes, 1)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := testServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "healthy", resp["collector"])
}

func TestAuthKey(t *testing.T) {
	srv, _, _ := testServer(t, config.APIConfig{AuthKey: "secret"})

	rec := doRequest(t, srv, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", "secret")
	out := httptest.NewRecorder()
	srv.Handler().ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/health?auth=secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := testServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPost, "/api/devices", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/recommendation", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
