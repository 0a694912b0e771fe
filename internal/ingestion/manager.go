package ingestion

import (
	"context"
	"errors"
	"log"

	"github.com/ethereum/go-ethereum/core/types"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/observability"
	"sandwich-watch/internal/storage"
)

// SwapObserver decodes the router logs of one transaction into swap events.
type SwapObserver interface {
	ObserveTx(ctx context.Context, logs []types.Log) ([]*domain.SwapEvent, error)
}

// TxHandler consumes the swap events of one transaction in order.
type TxHandler interface {
	HandleTx(ctx context.Context, events []*domain.SwapEvent) []*domain.Finding
}

// Manager moves router logs through decoding, storage and detection.
// Transactions are handed to the detector strictly in chain order.
type Manager struct {
	observer SwapObserver
	store    storage.ObservationStore
	engine   TxHandler
	logger   *log.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Observer         SwapObserver
	ObservationStore storage.ObservationStore // optional
	Engine           TxHandler
	Logger           *log.Logger
}

// NewManager creates a new ingestion manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Manager{
		observer: opts.Observer,
		store:    opts.ObservationStore,
		engine:   opts.Engine,
		logger:   logger,
	}
}

// BatchResult contains statistics from processing a batch of logs.
type BatchResult struct {
	Transactions int
	Swaps        int
	Stored       int
	Duplicates   int
	Findings     []*domain.Finding
	Errors       int
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Transactions += other.Transactions
	r.Swaps += other.Swaps
	r.Stored += other.Stored
	r.Duplicates += other.Duplicates
	r.Findings = append(r.Findings, other.Findings...)
	r.Errors += other.Errors
}

// IngestLogs sorts logs into chain order and processes them transaction by transaction.
func (m *Manager) IngestLogs(ctx context.Context, logs []types.Log) BatchResult {
	var result BatchResult
	if len(logs) == 0 {
		return result
	}

	SortLogs(logs)
	for _, txLogs := range GroupByTx(logs) {
		result.Add(m.IngestTx(ctx, txLogs))
	}
	return result
}

// IngestTx processes the router logs of a single transaction.
// Per-transaction failures are logged and counted; they never stop ingestion.
func (m *Manager) IngestTx(ctx context.Context, txLogs []types.Log) BatchResult {
	result := BatchResult{Transactions: 1}

	events, err := m.observer.ObserveTx(ctx, txLogs)
	if err != nil {
		m.logger.Printf("Error observing tx %s: %v", txLogs[0].TxHash.Hex(), err)
		observability.RecordEventError("observe", "resolve")
		result.Errors++
		return result
	}
	if len(events) == 0 {
		return result
	}
	result.Swaps = len(events)

	stored, dupes, errs := m.storeObservations(ctx, events)
	result.Stored = stored
	result.Duplicates = dupes
	result.Errors += errs

	if m.engine != nil {
		result.Findings = m.engine.HandleTx(ctx, events)
	}
	return result
}

// storeObservations stores a transaction's swaps, handling duplicates.
func (m *Manager) storeObservations(ctx context.Context, events []*domain.SwapEvent) (stored, dupes, errs int) {
	if m.store == nil {
		return 0, 0, 0
	}

	err := m.store.InsertBulk(ctx, events)
	switch {
	case err == nil:
		stored = len(events)
	case errors.Is(err, storage.ErrDuplicateKey):
		// Insert one by one to find which are duplicates
		for _, event := range events {
			if err := m.store.Insert(ctx, event); err != nil {
				if errors.Is(err, storage.ErrDuplicateKey) {
					dupes++
				} else {
					errs++
				}
			} else {
				stored++
			}
		}
	default:
		errs = len(events)
		m.logger.Printf("Error storing observations: %v", err)
		observability.RecordEventError("store", "observation")
	}

	observability.RecordObservationsStored(stored)
	return stored, dupes, errs
}
