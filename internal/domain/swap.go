package domain

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapObservation is one decoded router swap attributable to a single transaction.
// Corresponds to swap_observations table in PostgreSQL.
type SwapObservation struct {
	Account     common.Address // trade initiator as recorded in the event (not tx sender)
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *uint256.Int
	AmountOut   *uint256.Int
	TxRef       string         // transaction hash, reporting only
	Router      common.Address // emitting router contract
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
	CreatedAt   int64 // record creation timestamp (ms)
}

// SwapEvent is the per-swap input handed to the detector.
// RouterMatched is true only when the transaction targeted the monitored router.
type SwapEvent struct {
	RouterMatched bool
	SwapObservation
}

// Pair returns the token addresses in canonical (lower, higher) order.
func (o *SwapObservation) Pair() (common.Address, common.Address) {
	if bytes.Compare(o.TokenIn[:], o.TokenOut[:]) <= 0 {
		return o.TokenIn, o.TokenOut
	}
	return o.TokenOut, o.TokenIn
}

// SameDirection reports whether o trades the same tokenIn -> tokenOut as other.
func (o *SwapObservation) SameDirection(other *SwapObservation) bool {
	return o.TokenIn == other.TokenIn && o.TokenOut == other.TokenOut
}

// Reverses reports whether o trades exactly the opposite direction of other.
// A same-token trade never reverses anything, including itself.
func (o *SwapObservation) Reverses(other *SwapObservation) bool {
	if o.TokenIn == o.TokenOut {
		return false
	}
	return o.TokenIn == other.TokenOut && o.TokenOut == other.TokenIn
}

// AmountString renders an amount as a decimal string, treating nil as zero.
func AmountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
