package ingestion

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

// LogSource streams live router logs.
type LogSource interface {
	// Subscribe returns a channel of logs. Logs may arrive out of chain order;
	// Runner buffers them by block before processing.
	Subscribe(ctx context.Context) (<-chan types.Log, error)
}

// LogFetcher returns historical router logs.
type LogFetcher interface {
	// Fetch returns logs within block range [from, to] (inclusive) in chain order.
	Fetch(ctx context.Context, from, to uint64) ([]types.Log, error)
}
