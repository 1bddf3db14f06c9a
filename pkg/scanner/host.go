package scanner

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/logx"
)

// HostSource scans with the host's own wireless tooling. It tries iwinfo
// (OpenWrt/RUTOS), then iwlist, then nmcli, and parses whichever produced
// output. Requires a wireless interface and usually elevated permissions.
type HostSource struct {
	logger *logx.Logger
	iface  string
}

const scanTimeout = 30 * time.Second

// Percentage-based signal reports are converted to rough dBm from this base.
const rssiBaseDBm = -100

// NewHostSource creates a host scanner for the given interface.
func NewHostSource(iface string, logger *logx.Logger) *HostSource {
	if iface == "" {
		iface = "wlan0"
	}
	return &HostSource{
		logger: logger,
		iface:  iface,
	}
}

// Scan runs the first available scan tool and parses its output.
func (h *HostSource) Scan(ctx context.Context) ([]pkg.AccessPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	if out, err := exec.CommandContext(ctx, "iwinfo", h.iface, "scan").Output(); err == nil {
		aps := parseIwinfoScan(string(out))
		if len(aps) > 0 {
			h.logger.Debug("Host scan completed", "tool", "iwinfo", "access_points", len(aps))
			return aps, nil
		}
	}

	if out, err := exec.CommandContext(ctx, "iwlist", h.iface, "scan").Output(); err == nil {
		aps := parseIwlistScan(string(out))
		if len(aps) > 0 {
			h.logger.Debug("Host scan completed", "tool", "iwlist", "access_points", len(aps))
			return aps, nil
		}
	}

	if out, err := exec.CommandContext(ctx, "nmcli", "-t", "-f", "SSID,CHAN,SIGNAL", "dev", "wifi", "list").Output(); err == nil {
		aps := parseNmcliScan(string(out))
		if len(aps) > 0 {
			h.logger.Debug("Host scan completed", "tool", "nmcli", "access_points", len(aps))
			return aps, nil
		}
	}

	return nil, fmt.Errorf("no scan tool produced results on %s (tried iwinfo, iwlist, nmcli)", h.iface)
}

// Name implements Source.
func (h *HostSource) Name() string { return "host_scan" }

var (
	iwinfoCellRe    = regexp.MustCompile(`^Cell \d+ - Address:`)
	iwinfoESSIDRe   = regexp.MustCompile(`ESSID: "(.*)"`)
	iwinfoChannelRe = regexp.MustCompile(`Channel: (\d+)`)
	iwinfoSignalRe  = regexp.MustCompile(`Signal: (-?\d+) dBm`)

	iwlistESSIDRe   = regexp.MustCompile(`ESSID:"(.*)"`)
	iwlistChannelRe = regexp.MustCompile(`Channel:(\d+)`)
	iwlistSignalRe  = regexp.MustCompile(`Signal level=(-?\d+)(?: dBm)?`)
	iwlistQualityRe = regexp.MustCompile(`Signal level=(\d+)/100`)
)

// parseIwinfoScan parses `iwinfo <iface> scan` output.
func parseIwinfoScan(output string) []pkg.AccessPoint {
	var aps []pkg.AccessPoint
	var current *pkg.AccessPoint

	flush := func() {
		if current != nil && current.Channel != 0 && current.RSSI != 0 {
			aps = append(aps, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if iwinfoCellRe.MatchString(line) {
			flush()
			current = &pkg.AccessPoint{}
			continue
		}
		if current == nil {
			continue
		}

		if m := iwinfoESSIDRe.FindStringSubmatch(line); len(m) > 1 {
			current.SSID = m[1]
		}
		if m := iwinfoChannelRe.FindStringSubmatch(line); len(m) > 1 {
			current.Channel, _ = strconv.Atoi(m[1])
		}
		if m := iwinfoSignalRe.FindStringSubmatch(line); len(m) > 1 {
			if rssi, err := strconv.Atoi(m[1]); err == nil {
				current.RSSI = float64(rssi)
			}
		}
	}
	flush()

	return aps
}

// parseIwlistScan parses `iwlist <iface> scan` output. Percentage signal
// levels are converted to approximate dBm.
func parseIwlistScan(output string) []pkg.AccessPoint {
	var aps []pkg.AccessPoint
	var current *pkg.AccessPoint

	flush := func() {
		if current != nil && current.Channel != 0 && current.RSSI != 0 {
			aps = append(aps, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "Cell ") {
			flush()
			current = &pkg.AccessPoint{}
		}
		if current == nil {
			continue
		}

		if m := iwlistESSIDRe.FindStringSubmatch(line); len(m) > 1 {
			current.SSID = m[1]
		}
		if m := iwlistChannelRe.FindStringSubmatch(line); len(m) > 1 {
			current.Channel, _ = strconv.Atoi(m[1])
		}
		if m := iwlistQualityRe.FindStringSubmatch(line); len(m) > 1 {
			if percent, err := strconv.Atoi(m[1]); err == nil {
				current.RSSI = float64(rssiBaseDBm + percent)
			}
		} else if m := iwlistSignalRe.FindStringSubmatch(line); len(m) > 1 {
			if rssi, err := strconv.Atoi(m[1]); err == nil && rssi < 0 {
				current.RSSI = float64(rssi)
			}
		}
	}
	flush()

	return aps
}

// parseNmcliScan parses `nmcli -t -f SSID,CHAN,SIGNAL dev wifi list` output.
// nmcli reports signal as a percentage.
func parseNmcliScan(output string) []pkg.AccessPoint {
	var aps []pkg.AccessPoint

	for _, line := range strings.Split(output, "\n") {
		parts := strings.Split(line, ":")
		if len(parts) < 3 {
			continue
		}

		channel, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		signal, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			continue
		}

		aps = append(aps, pkg.AccessPoint{
			SSID:    strings.TrimSpace(parts[0]),
			Channel: channel,
			RSSI:    float64(rssiBaseDBm + signal),
		})
	}

	return aps
}
