package poller

import (
	"context"
	"sync"
	"time"

	"github.com/zigsight/zigsight/pkg"
	"github.com/zigsight/zigsight/pkg/analytics"
	"github.com/zigsight/zigsight/pkg/config"
	"github.com/zigsight/zigsight/pkg/logx"
	"github.com/zigsight/zigsight/pkg/metrics"
	"github.com/zigsight/zigsight/pkg/recommend"
	"github.com/zigsight/zigsight/pkg/telem"
)

// Poller drives the periodic work: an analytics pass over every device on a
// short interval, and a cleanup plus persistence sweep on a long one. Warning
// transitions between passes become events.
type Poller struct {
	cfg       config.PollerConfig
	store     *telem.Store
	analytics *analytics.Engine
	recommend *recommend.Engine
	metrics   *metrics.Metrics
	persister *telem.Persister
	perf      *logx.PerformanceLogger
	logger    *logx.Logger

	mu       sync.Mutex
	warnings map[string]warningState
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type warningState struct {
	drain bool
	conn  bool
}

// New creates a poller. metrics and persister may be nil when those features
// are disabled.
func New(
	cfg config.PollerConfig,
	store *telem.Store,
	analyticsEngine *analytics.Engine,
	recommendEngine *recommend.Engine,
	m *metrics.Metrics,
	persister *telem.Persister,
	logger *logx.Logger,
) *Poller {
	return &Poller{
		cfg:       cfg,
		store:     store,
		analytics: analyticsEngine,
		recommend: recommendEngine,
		metrics:   m,
		persister: persister,
		perf:      logx.NewPerformanceLogger(logger),
		logger:    logger,
		warnings:  make(map[string]warningState),
	}
}

// Start launches the periodic loops.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.analyticsLoop(ctx)
	go p.cleanupLoop(ctx)

	p.logger.Info("Poller started",
		"analytics_interval_s", p.cfg.AnalyticsIntervalS,
		"cleanup_interval_s", p.cfg.CleanupIntervalS,
	)
}

// Stop halts the loops and runs one final persistence sweep so the latest
// state survives restart.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	if p.persister != nil {
		if err := p.persist(); err != nil {
			p.logger.Error("Final persistence sweep failed", "error", err)
		}
	}

	p.logger.Info("Poller stopped")
}

func (p *Poller) analyticsLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(p.cfg.AnalyticsIntervalS) * time.Second)
	defer ticker.Stop()

	// First pass immediately so the API is populated right after startup.
	p.RunPass(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunPass(ctx)
		}
	}
}

func (p *Poller) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Duration(p.cfg.CleanupIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runCleanup(ctx)
		}
	}
}

// RunPass analyzes every tracked device once, updating metrics and emitting
// warning transition events.
func (p *Poller) RunPass(ctx context.Context) {
	op := p.perf.StartOperation(ctx, "analytics_pass")
	start := time.Now()

	ids := p.store.Devices()
	for _, id := range ids {
		result := p.analytics.Analyze(id)

		if p.metrics != nil {
			p.metrics.ObserveResult(result)
		}
		p.emitWarningTransitions(result)
	}

	if p.metrics != nil {
		p.metrics.ObservePass(len(ids), time.Since(start))
	}
	op.Complete(nil)
}

// runCleanup prunes aged history and persists the surviving state.
func (p *Poller) runCleanup(ctx context.Context) {
	op := p.perf.StartOperation(ctx, "cleanup_sweep")

	before := p.store.Devices()
	p.store.Cleanup()
	after := make(map[string]bool)
	for _, id := range p.store.Devices() {
		after[id] = true
	}

	for _, id := range before {
		if !after[id] {
			p.forgetDevice(id)
		}
	}

	var err error
	if p.persister != nil {
		err = p.persist()
	}
	op.Complete(err)

	if err != nil {
		p.logger.Error("Persistence sweep failed", "error", err)
	}
}

func (p *Poller) persist() error {
	if err := p.persister.Save(p.store); err != nil {
		return err
	}
	return p.persister.SaveRecommendations(p.recommend.History())
}

// emitWarningTransitions raises or clears warning events when a device's
// warning flags change between passes.
func (p *Poller) emitWarningTransitions(result pkg.DeviceAnalyticsResult) {
	p.mu.Lock()
	prev := p.warnings[result.DeviceID]
	current := warningState{drain: result.BatteryDrainWarning, conn: result.ConnectivityWarning}
	p.warnings[result.DeviceID] = current
	p.mu.Unlock()

	p.transition(result.DeviceID, "battery_drain", prev.drain, current.drain)
	p.transition(result.DeviceID, "connectivity", prev.conn, current.conn)
}

func (p *Poller) transition(deviceID, warning string, was, is bool) {
	if was == is {
		return
	}

	eventType := pkg.EventWarningRaised
	if !is {
		eventType = pkg.EventWarningCleared
	}

	p.store.AddEvent(pkg.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		DeviceID:  deviceID,
		Data:      map[string]interface{}{"warning": warning},
	})

	p.logger.Info("Warning state changed",
		"device_id", deviceID,
		"warning", warning,
		"active", is,
	)
}

func (p *Poller) forgetDevice(deviceID string) {
	p.mu.Lock()
	delete(p.warnings, deviceID)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ForgetDevice(deviceID)
	}
	p.logger.Debug("Device pruned", "device_id", deviceID)
}
