package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/analytics"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/recommend"
	"github.com/zigsight/zigsight/pkg/telem"
)

func testPoller(t *testing.T) (*Poller, *telem.Store) {
	t.Helper()

	logger := logx.NewLogger("error", "poller-test")
	store, err := telem.NewStore(100, 30*24*time.Hour)
	require.NoError(t, err)

	engine, err := analytics.NewEngine(config.Default().Analytics, store, logger)
	require.NoError(t, err)

	cfg := config.PollerConfig{AnalyticsIntervalS: 60, CleanupIntervalS: 3600}
	return New(cfg, store, engine, recommend.NewEngine(logger), nil, nil, logger), store
}

func TestRunPassEmitsWarningTransitions(t *testing.T) {
	p, store := testPoller(t)

	// Silent for two hours, so the connectivity warning is active.
	stale := time.Now().Add(-2 * time.Hour)
	store.Append("0xaaa", pkg.MetricSnapshot{Timestamp: stale, LastSeen: stale})

	p.RunPass(context.Background())

	events := store.Events(time.Time{}, 0)
	require.Len(t, events, 1)
	assert.Equal(t, pkg.EventWarningRaised, events[0].Type)
	assert.Equal(t, "0xaaa", events[0].DeviceID)
	assert.Equal(t, "connectivity", events[0].Data["warning"])
}

func TestRunPassNoDuplicateEvents(t *testing.T) {
	p, store := testPoller(t)

	stale := time.Now().Add(-2 * time.Hour)
	store.Append("0xaaa", pkg.MetricSnapshot{Timestamp: stale, LastSeen: stale})

	p.RunPass(context.Background())
	p.RunPass(context.Background())

	// The warning stays active; only the initial transition is an event.
	assert.Len(t, store.Events(time.Time{}, 0), 1)
}

func TestWarningClearedEvent(t *testing.T) {
	p, store := testPoller(t)

	stale := time.Now().Add(-2 * time.Hour)
	store.Append("0xaaa", pkg.MetricSnapshot{Timestamp: stale, LastSeen: stale})
	p.RunPass(context.Background())

	now := time.Now()
	store.Append("0xaaa", pkg.MetricSnapshot{Timestamp: now, LastSeen: now})
	p.RunPass(context.Background())

	events := store.Events(time.Time{}, 0)
	require.Len(t, events, 2)
	assert.Equal(t, pkg.EventWarningCleared, events[1].Type)
}

func TestStartStop(t *testing.T) {
	p, store := testPoller(t)

	now := time.Now()
	store.Append("0xaaa", pkg.MetricSnapshot{Timestamp: now, LastSeen: now})

	p.Start(context.Background())
	p.Stop()
}
