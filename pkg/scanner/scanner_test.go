package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
)

func testLogger() *logx.Logger {
	return logx.NewLogger("error", "scanner-test")
}

func TestParseIwinfoScan(t *testing.T) {
	output := `Cell 01 - Address: AA:BB:CC:DD:EE:01
          ESSID: "HomeNet"
          Mode: Master  Channel: 6
          Signal: -52 dBm  Quality: 58/70
          Encryption: WPA2 PSK (CCMP)

Cell 02 - Address: AA:BB:CC:DD:EE:02
          ESSID: "Neighbor"
          Mode: Master  Channel: 11
          Signal: -78 dBm  Quality: 32/70
          Encryption: WPA2 PSK (CCMP)
`

	aps := parseIwinfoScan(output)
	require.Len(t, aps, 2)

	assert.Equal(t, "HomeNet", aps[0].SSID)
	assert.Equal(t, 6, aps[0].Channel)
	assert.Equal(t, -52.0, aps[0].RSSI)

	assert.Equal(t, "Neighbor", aps[1].SSID)
	assert.Equal(t, 11, aps[1].Channel)
	assert.Equal(t, -78.0, aps[1].RSSI)
}

func TestParseIwlistScan(t *testing.T) {
	output := `wlan0     Scan completed :
          Cell 01 - Address: AA:BB:CC:DD:EE:01
                    Channel:1
                    Quality=60/70  Signal level=-50 dBm
                    ESSID:"FrontRouter"
          Cell 02 - Address: AA:BB:CC:DD:EE:02
                    Channel:13
                    Quality=30/100  Signal level=40/100
                    ESSID:"PercentAP"
`

	aps := parseIwlistScan(output)
	require.Len(t, aps, 2)

	assert.Equal(t, "FrontRouter", aps[0].SSID)
	assert.Equal(t, 1, aps[0].Channel)
	assert.Equal(t, -50.0, aps[0].RSSI)

	// Percent signal levels convert to approximate dBm.
	assert.Equal(t, "PercentAP", aps[1].SSID)
	assert.Equal(t, 13, aps[1].Channel)
	assert.Equal(t, -60.0, aps[1].RSSI)
}

func TestParseNmcliScan(t *testing.T) {
	output := "HomeNet:6:80\nNeighbor:11:25\nbadline\n:1:notanumber\n"

	aps := parseNmcliScan(output)
	require.Len(t, aps, 2)

	assert.Equal(t, pkg.AccessPoint{SSID: "HomeNet", Channel: 6, RSSI: -20}, aps[0])
	assert.Equal(t, pkg.AccessPoint{SSID: "Neighbor", Channel: 11, RSSI: -75}, aps[1])
}

func TestManualSourceSet(t *testing.T) {
	src := NewManualSource("", testLogger())
	src.Set([]pkg.AccessPoint{{Channel: 6, RSSI: -60, SSID: "Set"}})

	aps, err := src.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 1)
	assert.Equal(t, "Set", aps[0].SSID)
}

func TestManualSourceFileForms(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"bare_array", `[{"channel": 6, "rssi": -60, "ssid": "A"}]`, 1},
		{"wrapped", `{"access_points": [{"channel": 1, "rssi": -70}, {"channel": 11, "rssi": -55}]}`, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			src := NewManualSource(path, testLogger())
			aps, err := src.Scan(context.Background())
			require.NoError(t, err)
			assert.Len(t, aps, tt.want)
		})
	}
}

func TestManualSourceBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	src := NewManualSource(path, testLogger())
	_, err := src.Scan(context.Background())
	assert.Error(t, err)
}

func TestRouterSource(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_points": [{"channel": 6, "rssi": -61, "ssid": "RouterView"}]}`))
	}))
	defer srv.Close()

	src := NewRouterSource(srv.URL, "secret-key", testLogger())
	aps, err := src.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 1)
	assert.Equal(t, "RouterView", aps[0].SSID)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestRouterSourceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewRouterSource(srv.URL, "", testLogger())
	_, err := src.Scan(context.Background())
	assert.Error(t, err)
}

func TestNewSourceModes(t *testing.T) {
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{mode: "manual", want: "manual"},
		{mode: "host_scan", want: "host_scan"},
		{mode: "router_api", want: "router_api"},
		{mode: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			src, err := NewSource(config.ScannerConfig{Mode: tt.mode, RouterURL: "http://router"}, testLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, src.Name())
		})
	}
}
