package telem

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigsight/zigsight/pkg"
)

func newTestPersister(t *testing.T) *Persister {
	t.Helper()
	p, err := NewPersister(filepath.Join(t.TempDir(), "zigsight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	p := newTestPersister(t)

	src := newTestStore(t, 100, 30*24*time.Hour)
	now := time.Now().Truncate(time.Second)
	lq := 120

	src.SetDeviceInfo(pkg.DeviceInfo{DeviceID: "dev", FriendlyName: "sensor", Type: "end_device", FirstSeen: now})
	src.Append("dev", pkg.MetricSnapshot{Timestamp: now, LinkQuality: &lq, LastSeen: now})

	require.NoError(t, p.Save(src))

	dst := newTestStore(t, 100, 30*24*time.Hour)
	require.NoError(t, p.Load(dst))

	info, ok := dst.DeviceInfo("dev")
	require.True(t, ok)
	assert.Equal(t, "sensor", info.FriendlyName)

	history := dst.History("dev")
	require.Len(t, history, 1)
	require.NotNil(t, history[0].LinkQuality)
	assert.Equal(t, 120, *history[0].LinkQuality)
}

func TestSaveDropsPrunedDevices(t *testing.T) {
	p := newTestPersister(t)
	now := time.Now().Truncate(time.Second)

	src := newTestStore(t, 100, 30*24*time.Hour)
	src.Append("alive", pkg.MetricSnapshot{Timestamp: now, LastSeen: now})
	src.Append("dead", pkg.MetricSnapshot{Timestamp: now, LastSeen: now})
	require.NoError(t, p.Save(src))

	// The next snapshot no longer carries the dead device; its on-disk
	// record must go with it.
	pruned := newTestStore(t, 100, 30*24*time.Hour)
	pruned.Append("alive", pkg.MetricSnapshot{Timestamp: now, LastSeen: now})
	require.NoError(t, p.Save(pruned))

	dst := newTestStore(t, 100, 30*24*time.Hour)
	require.NoError(t, p.Load(dst))

	assert.Equal(t, []string{"alive"}, dst.Devices())
}

func TestLoadEmptyDatabase(t *testing.T) {
	p := newTestPersister(t)

	store := newTestStore(t, 10, time.Hour)
	require.NoError(t, p.Load(store))
	assert.Empty(t, store.Devices())
}

func TestRecommendationsRoundTrip(t *testing.T) {
	p := newTestPersister(t)

	results, err := p.LoadRecommendations()
	require.NoError(t, err)
	assert.Empty(t, results)

	saved := []pkg.RecommendationResult{{
		RecommendedChannel: 25,
		Scores:             map[int]float64{11: 0, 15: 0, 20: 20.5, 25: 0},
		Explanation:        "test",
		Timestamp:          time.Now().Truncate(time.Second),
	}}
	require.NoError(t, p.SaveRecommendations(saved))

	results, err = p.LoadRecommendations()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 25, results[0].RecommendedChannel)
	assert.Equal(t, 20.5, results[0].Scores[20])
}
