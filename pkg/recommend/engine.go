package recommend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/logx"
)

// Engine scores Zigbee candidate channels against detected Wi-Fi access
// points and recommends the one with least predicted interference. Scoring
// is a pure function of the access-point list; the engine only keeps a
// bounded history of past results for display.
type Engine struct {
	logger *logx.Logger

	mu      sync.Mutex
	history []pkg.RecommendationResult
}

// maxHistory bounds the retained recommendation results.
const maxHistory = 50

// NewEngine creates an interference scoring engine.
func NewEngine(logger *logx.Logger) *Engine {
	return &Engine{logger: logger}
}

// OverlapFactor models how much one Wi-Fi access point degrades one Zigbee
// channel: frequency overlap (1 at co-channel, 0 beyond the Wi-Fi span)
// scaled by signal strength (-90 dBm maps to 0, -30 dBm to 100). Unknown
// channels contribute nothing.
func OverlapFactor(wifiChannel, zigbeeChannel int, rssi float64) float64 {
	wifiFreq, ok := wifiChannelFreq[wifiChannel]
	if !ok {
		return 0.0
	}
	zigbeeFreq, ok := zigbeeChannelFreq[zigbeeChannel]
	if !ok {
		return 0.0
	}

	distance := float64(wifiFreq - zigbeeFreq)
	if distance < 0 {
		distance = -distance
	}

	overlap := 1.0 - distance/wifiBandwidthMHz
	if overlap < 0 {
		overlap = 0
	}

	normalizedRSSI := (rssi + 90.0) * 100.0 / 60.0
	if normalizedRSSI < 0 {
		normalizedRSSI = 0
	} else if normalizedRSSI > 100 {
		normalizedRSSI = 100
	}

	return overlap * normalizedRSSI
}

// Recommend scores every candidate channel against the access-point list and
// returns the recommendation. Malformed records are skipped individually and
// reported in the result's diagnostics; they never abort the computation.
func (e *Engine) Recommend(aps []pkg.AccessPoint) pkg.RecommendationResult {
	now := time.Now()

	valid, skipped := splitValid(aps)

	if len(valid) == 0 {
		result := pkg.RecommendationResult{
			RecommendedChannel: DefaultChannel,
			Scores:             zeroScores(),
			Explanation: fmt.Sprintf(
				"No Wi-Fi interference data available. Defaulting to Zigbee channel %d (common default).",
				DefaultChannel),
			SkippedAPs: skipped,
			Timestamp:  now,
		}
		e.record(result)
		return result
	}

	// Raw sums rank the candidates; the clamp is presentation only, so
	// heavily-interfered candidates keep their ordering.
	raw := make(map[int]float64, len(CandidateChannels))
	scores := make(map[int]float64, len(CandidateChannels))
	for _, ch := range CandidateChannels {
		var total float64
		for _, ap := range valid {
			total += OverlapFactor(ap.Channel, ch, ap.RSSI)
		}
		raw[ch] = total
		if total > 100 {
			scores[ch] = 100
		} else {
			scores[ch] = total
		}
	}

	best := CandidateChannels[0]
	for _, ch := range CandidateChannels[1:] {
		// Ties keep the lower channel number.
		if raw[ch] < raw[best] {
			best = ch
		}
	}

	result := pkg.RecommendationResult{
		RecommendedChannel: best,
		Scores:             scores,
		Explanation:        explain(valid, best, scores[best]),
		SkippedAPs:         skipped,
		Timestamp:          now,
	}

	e.logger.Info("Channel recommendation computed",
		"recommended_channel", best,
		"score", scores[best],
		"access_points", len(valid),
		"skipped", len(skipped),
	)

	e.record(result)
	return result
}

// History returns retained past recommendations, oldest first.
func (e *Engine) History() []pkg.RecommendationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]pkg.RecommendationResult, len(e.history))
	copy(out, e.history)
	return out
}

// RestoreHistory seeds the retained history, typically from persistence at
// startup.
func (e *Engine) RestoreHistory(results []pkg.RecommendationResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(results) > maxHistory {
		results = results[len(results)-maxHistory:]
	}
	e.history = append(e.history[:0], results...)
}

func (e *Engine) record(result pkg.RecommendationResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, result)
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// splitValid separates usable access-point records from malformed ones,
// producing a diagnostic per skipped record.
func splitValid(aps []pkg.AccessPoint) (valid []pkg.AccessPoint, skipped []string) {
	for i, ap := range aps {
		if ap.Channel < 1 || ap.Channel > 14 {
			skipped = append(skipped, fmt.Sprintf("access point %d (%s): channel %d outside 1-14", i, displayName(ap), ap.Channel))
			continue
		}
		// Real 2.4 GHz readings are always negative; zero means the scan
		// record carried no rssi at all.
		if ap.RSSI >= 0 || ap.RSSI < -120 {
			skipped = append(skipped, fmt.Sprintf("access point %d (%s): implausible rssi %g dBm", i, displayName(ap), ap.RSSI))
			continue
		}
		valid = append(valid, ap)
	}
	return valid, skipped
}

func displayName(ap pkg.AccessPoint) string {
	if ap.SSID != "" {
		return ap.SSID
	}
	return "hidden"
}

// explain summarizes the analyzed access points, their channel clusters, the
// winning channel and a severity band.
func explain(aps []pkg.AccessPoint, best int, bestScore float64) string {
	clusters := make(map[int]int)
	for _, ap := range aps {
		clusters[ap.Channel]++
	}

	channels := make([]int, 0, len(clusters))
	for ch := range clusters {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	if len(channels) > 5 {
		channels = channels[:5]
	}

	parts := make([]string, 0, len(channels))
	for _, ch := range channels {
		parts = append(parts, fmt.Sprintf("Ch%d (%d APs)", ch, clusters[ch]))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyzed %d Wi-Fi access points on channels: %s. ", len(aps), strings.Join(parts, ", "))
	fmt.Fprintf(&b, "Zigbee channel %d has the lowest interference score (%.1f/100). ", best, bestScore)

	switch {
	case bestScore < 20:
		b.WriteString("This channel has minimal Wi-Fi interference.")
	case bestScore <= 50:
		b.WriteString("This channel has moderate Wi-Fi interference.")
	default:
		b.WriteString("All channels have significant interference; this is the best available option.")
	}

	return b.String()
}

func zeroScores() map[int]float64 {
	scores := make(map[int]float64, len(CandidateChannels))
	for _, ch := range CandidateChannels {
		scores[ch] = 0
	}
	return scores
}
