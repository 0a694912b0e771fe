// Package alert delivers sandwich findings to logs, storage and message queues.
package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage"
)

// Sink receives detected findings.
type Sink interface {
	Emit(ctx context.Context, f *domain.Finding) error
}

// Envelope is the wire form of a finding shared by log and queue sinks.
type Envelope struct {
	AlertID     string          `json:"alertId"`
	Name        string          `json:"name"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	Finding     *domain.Finding `json:"metadata"`
}

// NewEnvelope wraps f with the alert metadata.
func NewEnvelope(f *domain.Finding) Envelope {
	return Envelope{
		AlertID:     domain.FindingAlertID,
		Name:        domain.FindingName,
		Severity:    domain.FindingSeverity,
		Description: f.Description(),
		Finding:     f,
	}
}

// LogSink writes each finding as a single JSON line.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a LogSink. A nil logger uses log.Default().
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs f.
func (s *LogSink) Emit(_ context.Context, f *domain.Finding) error {
	data, err := json.Marshal(NewEnvelope(f))
	if err != nil {
		return fmt.Errorf("marshal finding: %w", err)
	}
	s.logger.Printf("[alert] %s", data)
	return nil
}

// StoreSink persists findings. Re-detections of a stored finding, as happen
// on replay, are ignored.
type StoreSink struct {
	store storage.FindingStore
}

// NewStoreSink creates a StoreSink.
func NewStoreSink(store storage.FindingStore) *StoreSink {
	return &StoreSink{store: store}
}

// Emit inserts f.
func (s *StoreSink) Emit(ctx context.Context, f *domain.Finding) error {
	err := s.store.Insert(ctx, f)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return fmt.Errorf("store finding: %w", err)
	}
	return nil
}

// MultiSink fans a finding out to every sink. All sinks are attempted; their
// errors are joined.
type MultiSink []Sink

// Emit delivers f to each sink in order.
func (m MultiSink) Emit(ctx context.Context, f *domain.Finding) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*StoreSink)(nil)
	_ Sink = MultiSink(nil)
)
