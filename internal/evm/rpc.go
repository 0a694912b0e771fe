// Package evm provides JSON-RPC clients for Ethereum-compatible nodes.
package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// RPCClient defines the node HTTP interface used by ingestion.
type RPCClient interface {
	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// GetTransactionByHash retrieves a transaction. Returns nil if unknown.
	GetTransactionByHash(ctx context.Context, hash common.Hash) (*Transaction, error)

	// GetLogs returns logs matching the filter over [FromBlock, ToBlock].
	GetLogs(ctx context.Context, filter LogsFilter) ([]types.Log, error)
}

// Transaction holds the fields of eth_getTransactionByHash the detector needs.
type Transaction struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address // nil for contract creation
	BlockNumber *uint64         // nil while pending
	TxIndex     *uint64
}

// LogsFilter selects logs by emitting contract and topics.
type LogsFilter struct {
	Addresses []common.Address
	Topics    [][]common.Hash // positional; nil entry matches anything
	FromBlock uint64          // ignored for subscriptions
	ToBlock   uint64          // ignored for subscriptions
}

// toArg renders the filter as an eth_getLogs / eth_subscribe parameter.
func (f LogsFilter) toArg(withRange bool) map[string]interface{} {
	arg := make(map[string]interface{})
	if len(f.Addresses) == 1 {
		arg["address"] = f.Addresses[0]
	} else if len(f.Addresses) > 1 {
		arg["address"] = f.Addresses
	}
	if len(f.Topics) > 0 {
		arg["topics"] = f.Topics
	}
	if withRange {
		arg["fromBlock"] = hexutil.Uint64(f.FromBlock).String()
		arg["toBlock"] = hexutil.Uint64(f.ToBlock).String()
	}
	return arg
}
