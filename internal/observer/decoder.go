// Package observer turns router logs into swap events for the detector.
package observer

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"sandwich-watch/internal/domain"
)

// SwapEventABI describes the router event the observer decodes.
const SwapEventABI = `[{
	"anonymous": false,
	"type": "event",
	"name": "Swap",
	"inputs": [
		{"indexed": true,  "name": "from",      "type": "address"},
		{"indexed": false, "name": "tokenIn",   "type": "address"},
		{"indexed": false, "name": "tokenOut",  "type": "address"},
		{"indexed": false, "name": "amountIn",  "type": "uint256"},
		{"indexed": false, "name": "amountOut", "type": "uint256"}
	]
}]`

var (
	// ErrNotSwap is returned for logs that are not router Swap events.
	ErrNotSwap = errors.New("log is not a swap event")
	// ErrMalformedSwap is returned when a Swap log cannot be unpacked.
	ErrMalformedSwap = errors.New("malformed swap event")
)

// Decoder decodes router Swap logs.
type Decoder struct {
	abi   abi.ABI
	event abi.Event
}

// NewDecoder parses the Swap event ABI.
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(SwapEventABI))
	if err != nil {
		return nil, fmt.Errorf("parse swap abi: %w", err)
	}
	event, ok := parsed.Events["Swap"]
	if !ok {
		return nil, fmt.Errorf("parse swap abi: event Swap missing")
	}
	return &Decoder{abi: parsed, event: event}, nil
}

// Topic returns the Swap event signature hash (topic 0).
func (d *Decoder) Topic() common.Hash {
	return d.event.ID
}

// Decode extracts a swap observation from a router log.
// The initiating account is taken from the indexed `from` topic.
func (d *Decoder) Decode(entry *types.Log) (*domain.SwapObservation, error) {
	if len(entry.Topics) == 0 || entry.Topics[0] != d.event.ID {
		return nil, ErrNotSwap
	}
	if len(entry.Topics) != 2 {
		return nil, fmt.Errorf("%w: expected 2 topics, got %d", ErrMalformedSwap, len(entry.Topics))
	}

	values := make(map[string]interface{})
	if err := d.abi.UnpackIntoMap(values, d.event.Name, entry.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSwap, err)
	}

	tokenIn, ok1 := values["tokenIn"].(common.Address)
	tokenOut, ok2 := values["tokenOut"].(common.Address)
	amountIn, ok3 := values["amountIn"].(*big.Int)
	amountOut, ok4 := values["amountOut"].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, fmt.Errorf("%w: unexpected field types", ErrMalformedSwap)
	}

	return &domain.SwapObservation{
		Account:     common.BytesToAddress(entry.Topics[1].Bytes()),
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    uint256.MustFromBig(amountIn),
		AmountOut:   uint256.MustFromBig(amountOut),
		TxRef:       entry.TxHash.Hex(),
		Router:      entry.Address,
		BlockNumber: entry.BlockNumber,
		TxIndex:     entry.TxIndex,
		LogIndex:    entry.Index,
	}, nil
}
