package ingestion

import (
	"context"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"sandwich-watch/internal/evm"
)

// WSLogSource provides real-time router logs via WebSocket subscription.
type WSLogSource struct {
	ws     evm.WSClient
	filter evm.LogsFilter
}

// NewWSLogSource creates a WebSocket-based log source for the router's Swap events.
func NewWSLogSource(ws evm.WSClient, router common.Address, topic common.Hash) *WSLogSource {
	return &WSLogSource{
		ws: ws,
		filter: evm.LogsFilter{
			Addresses: []common.Address{router},
			Topics:    [][]common.Hash{{topic}},
		},
	}
}

// Subscribe returns a channel of router logs from a live subscription.
// The channel is closed when the context is cancelled or the subscription ends.
func (s *WSLogSource) Subscribe(ctx context.Context) (<-chan types.Log, error) {
	logsCh, err := s.ws.SubscribeLogs(ctx, s.filter)
	if err != nil {
		return nil, err
	}
	log.Printf("[ws-logs] Subscribed to router: %s", s.filter.Addresses[0].Hex())

	out := make(chan types.Log, 1000)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-logsCh:
				if !ok {
					log.Println("[ws-logs] subscription channel closed")
					return
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
