package observer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/evm"
	"sandwich-watch/internal/observability"
)

// DefaultCacheSize is the number of resolved transaction targets kept in memory.
const DefaultCacheSize = 4096

// TxResolver looks up a transaction by hash.
type TxResolver interface {
	GetTransactionByHash(ctx context.Context, hash common.Hash) (*evm.Transaction, error)
}

// Options configures an Observer.
type Options struct {
	Router    common.Address
	Resolver  TxResolver
	CacheSize int                    // Default: DefaultCacheSize
	Metrics   *observability.Metrics // optional
	Logger    *log.Logger            // optional
	Clock     func() time.Time       // optional, stamps CreatedAt
}

// Observer decodes the router logs of a transaction into swap events.
type Observer struct {
	router   common.Address
	decoder  *Decoder
	resolver TxResolver
	targets  *lru.Cache[common.Hash, bool]
	metrics  *observability.Metrics
	logger   *log.Logger
	clock    func() time.Time
}

// New creates an Observer for one router.
func New(opts Options) (*Observer, error) {
	if opts.Resolver == nil {
		return nil, errors.New("observer: resolver is required")
	}

	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	targets, err := lru.New[common.Hash, bool](size)
	if err != nil {
		return nil, fmt.Errorf("create target cache: %w", err)
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Observer{
		router:   opts.Router,
		decoder:  decoder,
		resolver: opts.Resolver,
		targets:  targets,
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
	}, nil
}

// Router returns the monitored router address.
func (o *Observer) Router() common.Address {
	return o.router
}

// Topic returns the Swap event topic the observer decodes.
func (o *Observer) Topic() common.Hash {
	return o.decoder.Topic()
}

// ObserveTx decodes the router logs of one transaction into swap events in
// log-index order. Removed logs and logs from other contracts are dropped;
// undecodable logs are counted and skipped.
func (o *Observer) ObserveTx(ctx context.Context, logs []types.Log) ([]*domain.SwapEvent, error) {
	entries := make([]*types.Log, 0, len(logs))
	for i := range logs {
		entry := &logs[i]
		if entry.Removed {
			o.metrics.SwapsSkipped.WithLabelValues("removed").Inc()
			continue
		}
		if entry.Address != o.router {
			continue
		}
		o.metrics.LogsReceived.Inc()
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	txHash := entries[0].TxHash
	for _, entry := range entries[1:] {
		if entry.TxHash != txHash {
			return nil, fmt.Errorf("logs span transactions %s and %s", txHash.Hex(), entry.TxHash.Hex())
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Index < entries[j].Index
	})

	now := o.clock().UnixMilli()
	var observations []*domain.SwapObservation
	for _, entry := range entries {
		obs, err := o.decoder.Decode(entry)
		if err != nil {
			if !errors.Is(err, ErrNotSwap) {
				o.metrics.SwapsSkipped.WithLabelValues("decode_failure").Inc()
				o.metrics.EventProcessingErrors.WithLabelValues("decode", "malformed").Inc()
				o.logger.Printf("[observer] tx %s log %d: %v", txHash.Hex(), entry.Index, err)
			}
			continue
		}
		obs.CreatedAt = now
		observations = append(observations, obs)
	}
	if len(observations) == 0 {
		return nil, nil
	}

	matched, err := o.targetsRouter(ctx, txHash)
	if err != nil {
		o.metrics.EventProcessingErrors.WithLabelValues("resolve", "rpc").Inc()
		return nil, fmt.Errorf("resolve tx %s: %w", txHash.Hex(), err)
	}

	events := make([]*domain.SwapEvent, len(observations))
	for i, obs := range observations {
		o.metrics.SwapsObserved.Inc()
		events[i] = &domain.SwapEvent{RouterMatched: matched, SwapObservation: *obs}
	}
	return events, nil
}

// targetsRouter reports whether the transaction's destination is the router.
// Unknown transactions are treated as not targeting it.
func (o *Observer) targetsRouter(ctx context.Context, txHash common.Hash) (bool, error) {
	if matched, ok := o.targets.Get(txHash); ok {
		return matched, nil
	}

	tx, err := o.resolver.GetTransactionByHash(ctx, txHash)
	if err != nil {
		return false, err
	}

	matched := tx != nil && tx.To != nil && *tx.To == o.router
	if tx != nil {
		o.targets.Add(txHash, matched)
	}
	return matched, nil
}
