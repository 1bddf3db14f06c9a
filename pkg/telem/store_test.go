package telem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigsight/zigsight/pkg"
)

func newTestStore(t *testing.T, maxEntries int, retention time.Duration) *Store {
	t.Helper()
	store, err := NewStore(maxEntries, retention)
	require.NoError(t, err)
	return store
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(0, time.Hour)
	assert.Error(t, err)

	_, err = NewStore(10, 0)
	assert.Error(t, err)
}

func TestAppendEvictsOldest(t *testing.T) {
	store := newTestStore(t, 1000, 30*24*time.Hour)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 1001; i++ {
		store.Append("dev", pkg.MetricSnapshot{Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	history := store.History("dev")
	require.Len(t, history, 1000)
	// The very first entry was evicted.
	assert.Equal(t, base.Add(1*time.Second), history[0].Timestamp)
	assert.Equal(t, base.Add(1000*time.Second), history[999].Timestamp)
}

func TestWindowOrderingAndFilter(t *testing.T) {
	store := newTestStore(t, 100, 30*24*time.Hour)
	now := time.Now()

	// Out of order on purpose; reads must still come back chronological.
	store.Append("dev", pkg.MetricSnapshot{Timestamp: now.Add(-10 * time.Minute)})
	store.Append("dev", pkg.MetricSnapshot{Timestamp: now.Add(-30 * time.Minute)})
	store.Append("dev", pkg.MetricSnapshot{Timestamp: now.Add(-20 * time.Minute)})

	window := store.Window("dev", now.Add(-25*time.Minute))
	require.Len(t, window, 2)
	assert.True(t, window[0].Timestamp.Before(window[1].Timestamp))

	assert.Len(t, store.History("dev"), 3)
	assert.Nil(t, store.Window("unknown", time.Time{}))
}

func TestRetentionDropsAgedEntries(t *testing.T) {
	store := newTestStore(t, 100, time.Hour)
	now := time.Now()

	store.Append("dev", pkg.MetricSnapshot{Timestamp: now.Add(-2 * time.Hour)})
	store.Append("dev", pkg.MetricSnapshot{Timestamp: now.Add(-10 * time.Minute)})

	// Reads filter by age even before a cleanup sweep runs.
	assert.Len(t, store.History("dev"), 1)
	assert.Equal(t, 2, store.Count("dev"))

	store.Cleanup()
	assert.Equal(t, 1, store.Count("dev"))
}

func TestLatest(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)

	_, ok := store.Latest("dev")
	assert.False(t, ok)

	now := time.Now()
	store.Append("dev", pkg.MetricSnapshot{Timestamp: now.Add(-time.Minute)})
	store.Append("dev", pkg.MetricSnapshot{Timestamp: now})

	latest, ok := store.Latest("dev")
	require.True(t, ok)
	assert.Equal(t, now, latest.Timestamp)
}

func TestSetDeviceInfoMerges(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	first := time.Now().Add(-time.Hour)

	store.SetDeviceInfo(pkg.DeviceInfo{DeviceID: "dev", FriendlyName: "sensor", Type: "end_device", FirstSeen: first})
	store.SetDeviceInfo(pkg.DeviceInfo{DeviceID: "dev", ParentID: "router1", FirstSeen: time.Now()})

	info, ok := store.DeviceInfo("dev")
	require.True(t, ok)
	assert.Equal(t, "sensor", info.FriendlyName)
	assert.Equal(t, "router1", info.ParentID)
	// FirstSeen keeps the earliest registration.
	assert.Equal(t, first, info.FirstSeen)
}

func TestDevicesSorted(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	now := time.Now()

	store.Append("zz", pkg.MetricSnapshot{Timestamp: now})
	store.Append("aa", pkg.MetricSnapshot{Timestamp: now})
	store.Append("mm", pkg.MetricSnapshot{Timestamp: now})

	assert.Equal(t, []string{"aa", "mm", "zz"}, store.Devices())
}

func TestEvents(t *testing.T) {
	store := newTestStore(t, 10, time.Hour)
	now := time.Now()

	for i := 0; i < 5; i++ {
		store.AddEvent(pkg.Event{
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Type:      pkg.EventDeviceUpdate,
			DeviceID:  "dev",
		})
	}

	assert.Len(t, store.Events(time.Time{}, 0), 5)
	assert.Len(t, store.Events(time.Time{}, 2), 2)
	assert.Len(t, store.Events(now.Add(3*time.Second), 0), 2)
}
