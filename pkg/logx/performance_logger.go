package logx

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PerformanceLogger tracks operation timings and logs slow or failing
// operations. The poller wraps each analytics pass in one of these.
type PerformanceLogger struct {
	logger *Logger

	mu      sync.RWMutex
	metrics map[string]*PerformanceMetric
}

// PerformanceMetric accumulates timing data for one named operation.
type PerformanceMetric struct {
	Name          string        `json:"name"`
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastExecuted  time.Time     `json:"last_executed"`
	ErrorCount    int64         `json:"error_count"`
	SuccessRate   float64       `json:"success_rate"`
}

// PerformanceContext is one in-flight tracked operation.
type PerformanceContext struct {
	name      string
	startTime time.Time
	logger    *PerformanceLogger
	ctx       context.Context
}

// NewPerformanceLogger creates a performance logger on top of a base logger.
func NewPerformanceLogger(logger *Logger) *PerformanceLogger {
	return &PerformanceLogger{
		logger:  logger,
		metrics: make(map[string]*PerformanceMetric),
	}
}

// StartOperation begins tracking one operation. Call Complete on the
// returned context when the operation finishes.
func (pl *PerformanceLogger) StartOperation(ctx context.Context, name string) *PerformanceContext {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if _, exists := pl.metrics[name]; !exists {
		pl.metrics[name] = &PerformanceMetric{
			Name:         name,
			MinDuration:  time.Hour, // first sample always beats this
			LastExecuted: time.Now(),
		}
	}

	return &PerformanceContext{
		name:      name,
		startTime: time.Now(),
		logger:    pl,
		ctx:       ctx,
	}
}

// Complete records the operation's outcome and logs failures and slow runs.
func (pc *PerformanceContext) Complete(err error) {
	duration := time.Since(pc.startTime)

	pc.logger.mu.Lock()
	defer pc.logger.mu.Unlock()

	metric := pc.logger.metrics[pc.name]
	metric.Count++
	metric.TotalDuration += duration
	metric.LastExecuted = time.Now()

	if duration < metric.MinDuration {
		metric.MinDuration = duration
	}
	if duration > metric.MaxDuration {
		metric.MaxDuration = duration
	}
	metric.AvgDuration = metric.TotalDuration / time.Duration(metric.Count)

	if err != nil {
		metric.ErrorCount++
	}
	metric.SuccessRate = float64(metric.Count-metric.ErrorCount) / float64(metric.Count) * 100

	if err != nil {
		pc.logger.logger.Error("Operation failed",
			"operation", pc.name,
			"duration", duration.String(),
			"error", err.Error(),
			"success_rate", fmt.Sprintf("%.2f%%", metric.SuccessRate),
		)
		return
	}

	if duration > 100*time.Millisecond || metric.Count%100 == 0 {
		pc.logger.logger.Info("Operation completed",
			"operation", pc.name,
			"duration", duration.String(),
			"avg_duration", metric.AvgDuration.String(),
			"total_operations", metric.Count,
		)
	}
}

// GetMetric returns a copy of one metric, or nil if it has never run.
func (pl *PerformanceLogger) GetMetric(name string) *PerformanceMetric {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	metric, exists := pl.metrics[name]
	if !exists {
		return nil
	}
	copied := *metric
	return &copied
}

// GetAllMetrics returns copies of all tracked metrics.
func (pl *PerformanceLogger) GetAllMetrics() map[string]*PerformanceMetric {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	result := make(map[string]*PerformanceMetric, len(pl.metrics))
	for name, metric := range pl.metrics {
		copied := *metric
		result[name] = &copied
	}
	return result
}

// LogMetrics emits a summary line per tracked operation.
func (pl *PerformanceLogger) LogMetrics() {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	for name, metric := range pl.metrics {
		pl.logger.Info("Performance metric summary",
			"operation", name,
			"total_operations", metric.Count,
			"avg_duration", metric.AvgDuration.String(),
			"min_duration", metric.MinDuration.String(),
			"max_duration", metric.MaxDuration.String(),
			"success_rate", fmt.Sprintf("%.2f%%", metric.SuccessRate),
			"error_count", metric.ErrorCount,
		)
	}
}

// LogSlowOperations warns about operations whose average exceeds threshold.
func (pl *PerformanceLogger) LogSlowOperations(threshold time.Duration) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	for name, metric := range pl.metrics {
		if metric.AvgDuration > threshold {
			pl.logger.Warn("Slow operation detected",
				"operation", name,
				"avg_duration", metric.AvgDuration.String(),
				"threshold", threshold.String(),
				"total_operations", metric.Count,
			)
		}
	}
}
