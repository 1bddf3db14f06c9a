package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sajari/regression"

	"github.com/zigsight/zigsight/pkg"
)

// BatteryTrend computes the least-squares slope of battery percent over time
// within the trailing window, in percent per hour. Negative means draining.
// Returns nil when fewer than two qualifying readings exist or when every
// reading shares one timestamp; insufficient data is not an error and is
// never coerced to zero.
func (e *Engine) BatteryTrend(history []pkg.MetricSnapshot, windowHours int, now time.Time) *float64 {
	if len(history) == 0 {
		return nil
	}

	windowStart := now.Add(-time.Duration(windowHours) * time.Hour)

	readings := make([]batteryReading, 0, len(history))
	for _, snap := range history {
		if snap.Battery == nil || snap.Timestamp.Before(windowStart) {
			continue
		}
		// Readings below the floor are dominated by non-linear discharge
		// and cell chemistry noise; they would corrupt the fit.
		if *snap.Battery < e.cfg.MinBatteryForTrend {
			continue
		}
		readings = append(readings, batteryReading{at: snap.Timestamp, battery: *snap.Battery})
	}
	if len(readings) < 2 {
		return nil
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].at.Before(readings[j].at)
	})

	// Hours elapsed since the first qualifying reading.
	t0 := readings[0].at
	spread := false
	r := new(regression.Regression)
	r.SetObserved("battery percent")
	r.SetVar(0, "hours elapsed")

	for _, rd := range readings {
		hours := rd.at.Sub(t0).Hours()
		if hours != 0 {
			spread = true
		}
		r.Train(regression.DataPoint(rd.battery, []float64{hours}))
	}
	if !spread {
		// All timestamps identical; the slope is undefined.
		return nil
	}

	// The regression needs more observations than a minimal pair; fall back
	// to the closed-form slope so two readings still produce a trend.
	slope, err := fitSlope(r, readings, t0)
	if err != nil {
		e.logger.Debug("Battery trend fit failed", "error", err)
		return nil
	}
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return nil
	}
	return &slope
}

type batteryReading struct {
	at      time.Time
	battery float64
}

func fitSlope(r *regression.Regression, readings []batteryReading, t0 time.Time) (float64, error) {
	if err := r.Run(); err == nil {
		return r.Coeff(1), nil
	}

	var sumT, sumB, sumTT, sumTB float64
	for _, rd := range readings {
		hours := rd.at.Sub(t0).Hours()
		sumT += hours
		sumB += rd.battery
		sumTT += hours * hours
		sumTB += hours * rd.battery
	}

	n := float64(len(readings))
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return 0, fmt.Errorf("degenerate time spread across %d readings", len(readings))
	}
	return (n*sumTB - sumT*sumB) / denom, nil
}
