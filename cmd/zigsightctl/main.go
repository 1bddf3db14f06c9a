package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

var (
	serverURL = flag.String("server", "http://localhost:8090", "zigsightd API base URL")
	authKey   = flag.String("auth", "", "API authentication key")
	timeout   = flag.Duration("timeout", 15*time.Second, "Request timeout")

	outputFormat = flag.String("format", "standard", "Output format: standard, json")

	listDevices  = flag.Bool("devices", false, "List tracked devices with analytics")
	deviceID     = flag.String("device", "", "Show one device's analytics")
	history      = flag.Bool("history", false, "Show the device's metric history (with -device)")
	historyHours = flag.Int("hours", 24, "History window in hours (with -history)")
	overview     = flag.Bool("overview", false, "Show fleet-wide analytics overview")
	topo         = flag.Bool("topology", false, "Show the mesh topology graph")
	recommendCh  = flag.Bool("recommend", false, "Compute a Zigbee channel recommendation")
	scanFile     = flag.String("scan-file", "", "JSON access-point list to recommend from (with -recommend)")
	recHistory   = flag.Bool("recommendation-history", false, "Show past channel recommendations")
	events       = flag.Bool("events", false, "Show recent system events")
	eventLimit   = flag.Int("limit", 50, "Maximum events to show (with -events)")
	healthCheck  = flag.Bool("health", false, "Show daemon health")
	version      = flag.Bool("version", false, "Show version information")
)

const (
	AppName    = "zigsightctl"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	c := &client{
		base: strings.TrimRight(*serverURL, "/"),
		auth: *authKey,
		http: &http.Client{Timeout: *timeout},
	}

	var err error
	switch {
	case *listDevices:
		err = c.show("GET", "/api/devices", nil, printDevices)
	case *deviceID != "" && *history:
		path := fmt.Sprintf("/api/devices/%s/history?hours=%d", *deviceID, *historyHours)
		err = c.show("GET", path, nil, printHistory)
	case *deviceID != "":
		err = c.show("GET", "/api/devices/"+*deviceID, nil, printDevice)
	case *overview:
		err = c.show("GET", "/api/analytics/overview", nil, printKeyValues)
	case *topo:
		err = c.show("GET", "/api/topology", nil, printTopology)
	case *recommendCh:
		err = c.recommend(*scanFile)
	case *recHistory:
		err = c.show("GET", "/api/recommendation/history", nil, printRecommendationHistory)
	case *events:
		err = c.show("GET", fmt.Sprintf("/api/events?limit=%d", *eventLimit), nil, printEvents)
	case *healthCheck:
		err = c.show("GET", "/api/health", nil, printKeyValues)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	auth string
	http *http.Client
}

func (c *client) do(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != "" {
		req.Header.Set("X-API-Key", c.auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// show fetches path and renders it with printer, or dumps raw JSON when the
// json format is selected.
func (c *client) show(method, path string, body []byte, printer func([]byte) error) error {
	data, err := c.do(method, path, body)
	if err != nil {
		return err
	}

	if *outputFormat == "json" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		fmt.Println(buf.String())
		return nil
	}
	return printer(data)
}

func (c *client) recommend(scanFile string) error {
	var body []byte
	if scanFile != "" {
		data, err := os.ReadFile(scanFile)
		if err != nil {
			return fmt.Errorf("failed to read scan file: %w", err)
		}
		// Accept a bare AP array and wrap it into the request shape.
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			body = []byte(`{"access_points": ` + string(trimmed) + `}`)
		} else {
			body = trimmed
		}
	}
	return c.show("POST", "/api/recommendation", body, printRecommendation)
}

func printDevices(data []byte) error {
	var resp struct {
		Count   int `json:"count"`
		Devices []struct {
			DeviceID     string `json:"device_id"`
			FriendlyName string `json:"friendly_name"`
			Type         string `json:"type"`
			Analytics    struct {
				HealthScore         float64 `json:"health_score"`
				ReconnectRate       float64 `json:"reconnect_rate"`
				BatteryDrainWarning bool    `json:"battery_drain_warning"`
				ConnectivityWarning bool    `json:"connectivity_warning"`
			} `json:"analytics"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}

	fmt.Printf("%-24s %-20s %-12s %8s %10s %s\n", "DEVICE", "NAME", "TYPE", "HEALTH", "RECONN/HR", "WARNINGS")
	for _, d := range resp.Devices {
		var warnings []string
		if d.Analytics.BatteryDrainWarning {
			warnings = append(warnings, "battery-drain")
		}
		if d.Analytics.ConnectivityWarning {
			warnings = append(warnings, "connectivity")
		}
		fmt.Printf("%-24s %-20s %-12s %8.1f %10.2f %s\n",
			d.DeviceID, d.FriendlyName, d.Type,
			d.Analytics.HealthScore, d.Analytics.ReconnectRate,
			strings.Join(warnings, ","))
	}
	fmt.Printf("\n%d devices\n", resp.Count)
	return nil
}

func printDevice(data []byte) error {
	var d struct {
		DeviceID     string    `json:"device_id"`
		FriendlyName string    `json:"friendly_name"`
		Type         string    `json:"type"`
		LastSeen     time.Time `json:"last_seen"`
		Analytics    struct {
			HealthScore         float64  `json:"health_score"`
			ReconnectRate       float64  `json:"reconnect_rate"`
			BatteryTrend        *float64 `json:"battery_trend"`
			BatteryDrainWarning bool     `json:"battery_drain_warning"`
			ConnectivityWarning bool     `json:"connectivity_warning"`
		} `json:"analytics"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}

	fmt.Printf("Device:        %s\n", d.DeviceID)
	if d.FriendlyName != "" {
		fmt.Printf("Name:          %s\n", d.FriendlyName)
	}
	fmt.Printf("Type:          %s\n", d.Type)
	if !d.LastSeen.IsZero() {
		fmt.Printf("Last seen:     %s\n", d.LastSeen.Format(time.RFC3339))
	}
	fmt.Printf("Health score:  %.1f/100\n", d.Analytics.HealthScore)
	fmt.Printf("Reconnects:    %.2f/hr\n", d.Analytics.ReconnectRate)
	if d.Analytics.BatteryTrend != nil {
		fmt.Printf("Battery trend: %+.2f %%/hr\n", *d.Analytics.BatteryTrend)
	} else {
		fmt.Printf("Battery trend: n/a\n")
	}
	fmt.Printf("Warnings:      battery-drain=%v connectivity=%v\n",
		d.Analytics.BatteryDrainWarning, d.Analytics.ConnectivityWarning)
	return nil
}

func printHistory(data []byte) error {
	var resp struct {
		DeviceID string `json:"device_id"`
		Count    int    `json:"count"`
		History  []struct {
			Timestamp   time.Time `json:"timestamp"`
			LinkQuality *int      `json:"link_quality"`
			Battery     *float64  `json:"battery"`
		} `json:"history"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}

	fmt.Printf("%-25s %6s %8s\n", "TIMESTAMP", "LQI", "BATTERY")
	for _, h := range resp.History {
		lqi, battery := "-", "-"
		if h.LinkQuality != nil {
			lqi = fmt.Sprintf("%d", *h.LinkQuality)
		}
		if h.Battery != nil {
			battery = fmt.Sprintf("%.0f%%", *h.Battery)
		}
		fmt.Printf("%-25s %6s %8s\n", h.Timestamp.Format(time.RFC3339), lqi, battery)
	}
	fmt.Printf("\n%d entries for %s\n", resp.Count, resp.DeviceID)
	return nil
}

func printTopology(data []byte) error {
	var graph struct {
		Nodes []struct {
			DeviceID     string `json:"device_id"`
			FriendlyName string `json:"friendly_name"`
			Type         string `json:"type"`
		} `json:"nodes"`
		Edges []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(data, &graph); err != nil {
		return err
	}

	parentOf := make(map[string]string, len(graph.Edges))
	for _, e := range graph.Edges {
		parentOf[e.Source] = e.Target
	}

	fmt.Printf("%-24s %-20s %-12s %s\n", "DEVICE", "NAME", "TYPE", "PARENT")
	for _, n := range graph.Nodes {
		fmt.Printf("%-24s %-20s %-12s %s\n", n.DeviceID, n.FriendlyName, n.Type, parentOf[n.DeviceID])
	}
	fmt.Printf("\n%d devices, %d links\n", len(graph.Nodes), len(graph.Edges))
	return nil
}

func printRecommendation(data []byte) error {
	var r struct {
		RecommendedChannel int                `json:"recommended_channel"`
		Scores             map[string]float64 `json:"scores"`
		Explanation        string             `json:"explanation"`
		SkippedAPs         []string           `json:"skipped_aps"`
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	fmt.Printf("Recommended Zigbee channel: %d\n\n", r.RecommendedChannel)

	channels := make([]string, 0, len(r.Scores))
	for ch := range r.Scores {
		channels = append(channels, ch)
	}
	sort.Strings(channels)
	for _, ch := range channels {
		fmt.Printf("  channel %-3s interference %.1f/100\n", ch, r.Scores[ch])
	}

	fmt.Printf("\n%s\n", r.Explanation)
	for _, skipped := range r.SkippedAPs {
		fmt.Printf("skipped: %s\n", skipped)
	}
	return nil
}

func printRecommendationHistory(data []byte) error {
	var resp struct {
		Count   int `json:"count"`
		History []struct {
			RecommendedChannel int       `json:"recommended_channel"`
			Timestamp          time.Time `json:"timestamp"`
		} `json:"history"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}

	fmt.Printf("%-25s %s\n", "TIMESTAMP", "CHANNEL")
	for _, h := range resp.History {
		fmt.Printf("%-25s %d\n", h.Timestamp.Format(time.RFC3339), h.RecommendedChannel)
	}
	fmt.Printf("\n%d recommendations\n", resp.Count)
	return nil
}

func printEvents(data []byte) error {
	var resp struct {
		Count  int `json:"count"`
		Events []struct {
			Timestamp time.Time              `json:"timestamp"`
			Type      string                 `json:"type"`
			DeviceID  string                 `json:"device_id"`
			Data      map[string]interface{} `json:"data"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}

	for _, e := range resp.Events {
		line := fmt.Sprintf("%s  %-20s %s", e.Timestamp.Format(time.RFC3339), e.Type, e.DeviceID)
		if len(e.Data) > 0 {
			extra, _ := json.Marshal(e.Data)
			line += "  " + string(extra)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d events\n", resp.Count)
	return nil
}

// printKeyValues renders a flat JSON object as sorted key: value lines.
func printKeyValues(data []byte) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := obj[k]
		if nested, ok := v.(map[string]interface{}); ok {
			encoded, _ := json.Marshal(nested)
			v = string(encoded)
		}
		fmt.Printf("%-24s %v\n", k+":", v)
	}
	return nil
}
