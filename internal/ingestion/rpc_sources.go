package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"sandwich-watch/internal/evm"
)

// DefaultMaxBlockRange is the widest eth_getLogs request issued by RPCLogSource.
const DefaultMaxBlockRange = 2000

// RPCLogSource fetches historical router logs with eth_getLogs.
type RPCLogSource struct {
	rpc           evm.RPCClient
	filter        evm.LogsFilter
	maxBlockRange uint64
}

// NewRPCLogSource creates an RPC-based log source for the router's Swap events.
// maxBlockRange of 0 uses DefaultMaxBlockRange.
func NewRPCLogSource(rpc evm.RPCClient, router common.Address, topic common.Hash, maxBlockRange uint64) *RPCLogSource {
	if maxBlockRange == 0 {
		maxBlockRange = DefaultMaxBlockRange
	}
	return &RPCLogSource{
		rpc: rpc,
		filter: evm.LogsFilter{
			Addresses: []common.Address{router},
			Topics:    [][]common.Hash{{topic}},
		},
		maxBlockRange: maxBlockRange,
	}
}

// Fetch returns logs within [from, to] in chain order.
// A range rejected by the node is split in half and retried.
func (s *RPCLogSource) Fetch(ctx context.Context, from, to uint64) ([]types.Log, error) {
	if from > to {
		return nil, nil
	}

	var all []types.Log
	span := s.maxBlockRange

	for start := from; start <= to; {
		end := start + span - 1
		if end > to || end < start {
			end = to
		}

		filter := s.filter
		filter.FromBlock = start
		filter.ToBlock = end

		logs, err := s.rpc.GetLogs(ctx, filter)
		if err != nil {
			var rpcErr *evm.RPCError
			if errors.As(err, &rpcErr) && end > start {
				span = (end - start + 1) / 2
				log.Printf("[rpc-logs] range %d-%d rejected (%s), narrowing to %d blocks", start, end, rpcErr.Message, span)
				continue
			}
			return nil, fmt.Errorf("get logs %d-%d: %w", start, end, err)
		}

		all = append(all, logs...)
		if end == to {
			break
		}
		start = end + 1
	}

	SortLogs(all)
	return all, nil
}
