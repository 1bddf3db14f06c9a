package collector

import (
	"context"

	"github.com/zigsight/zigsight/pkg"
)

// Collector feeds normalized device telemetry into a Sink. Implementations
// own their transport; the rest of the system only sees snapshots and device
// info.
type Collector interface {
	// Start connects the collector and begins ingesting until the context is
	// cancelled or Stop is called.
	Start(ctx context.Context) error
	// Stop disconnects and releases transport resources.
	Stop()
	// Name identifies the collector in logs and health output.
	Name() string
	// Healthy reports whether the collector's transport is currently up.
	Healthy() bool
}

// Sink receives what a collector ingests. *telem.Store satisfies it; tests
// substitute their own.
type Sink interface {
	Append(deviceID string, snap pkg.MetricSnapshot)
	SetDeviceInfo(info pkg.DeviceInfo)
	Latest(deviceID string) (pkg.MetricSnapshot, bool)
	AddEvent(event pkg.Event)
}
