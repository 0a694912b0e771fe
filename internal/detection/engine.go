package detection

import (
	"context"
	"log"
	"sync"
	"time"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/observability"
)

// FindingSink receives findings as they are detected.
type FindingSink interface {
	Emit(ctx context.Context, f *domain.Finding) error
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Config  Config
	Sink    FindingSink            // optional
	Metrics *observability.Metrics // optional, defaults to observability.DefaultMetrics
	Logger  *log.Logger            // optional, defaults to log.Default()
	Clock   func() time.Time       // optional
}

// Engine serializes swap events into a Detector and forwards findings to a sink.
type Engine struct {
	mu       sync.Mutex
	detector *Detector
	sink     FindingSink
	metrics  *observability.Metrics
	logger   *log.Logger

	// counters already exported to metrics
	lastSweeps  int64
	lastEvicted int64
}

// NewEngine creates a detection engine.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	d := NewDetector(opts.Config)
	if opts.Clock != nil {
		d.WithClock(opts.Clock)
	}

	return &Engine{
		detector: d,
		sink:     opts.Sink,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleTx feeds the swap events of one transaction to the matcher in order
// and emits every resulting finding. Sink failures are logged and counted;
// they do not affect matcher state.
func (e *Engine) HandleTx(ctx context.Context, events []*domain.SwapEvent) []*domain.Finding {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var findings []*domain.Finding

	for _, ev := range events {
		if ev == nil {
			continue
		}
		if !ev.RouterMatched {
			e.metrics.SwapsSkipped.WithLabelValues("router_mismatch").Inc()
		}

		f := e.detector.ProcessEvent(ev)
		if f == nil {
			continue
		}

		findings = append(findings, f)
		e.metrics.FindingsDetected.Inc()
		e.logger.Printf("[detector] %s", f.Description())

		if e.sink != nil {
			if err := e.sink.Emit(ctx, f); err != nil {
				e.metrics.SinkErrors.WithLabelValues("emit").Inc()
				e.logger.Printf("[detector] emit finding %s: %v", f.FindingID, err)
			}
		}
	}

	e.updateMetrics()
	e.metrics.TxProcessingLatency.Observe(time.Since(start).Seconds())
	return findings
}

// Stats returns a snapshot of the detector counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.Stats()
}

// HistoryLen returns the number of indexed history entries.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.History().Len()
}

func (e *Engine) updateMetrics() {
	stats := e.detector.Stats()
	e.metrics.HistorySize.Set(float64(e.detector.History().Len()))

	if d := stats.Sweeps - e.lastSweeps; d > 0 {
		e.metrics.HistorySweeps.Add(float64(d))
	}
	if d := stats.Evicted - e.lastEvicted; d > 0 {
		e.metrics.HistoryEvicted.Add(float64(d))
	}
	e.lastSweeps = stats.Sweeps
	e.lastEvicted = stats.Evicted
}
