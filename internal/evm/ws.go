package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

// WSClient defines the node WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to new logs matching the filter.
	// The block range of the filter is ignored.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan types.Log, error)

	// Close closes the WebSocket connection.
	Close() error
}
