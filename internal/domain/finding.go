package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Alert metadata attached to every sandwich finding.
const (
	FindingAlertID  = "SANDWICH-ATTACK"
	FindingName     = "Sandwich attack"
	FindingSeverity = "medium"
)

// Finding is a confirmed front -> victim -> back sandwich.
// Corresponds to sandwich_findings table in PostgreSQL.
type Finding struct {
	FindingID          string         `json:"findingId"` // deterministic hash of the three tx refs
	Router             common.Address `json:"router"`
	BlockNumber        uint64         `json:"blockNumber"` // block of the back trade
	FrontTxRef         string         `json:"frontTxRef"`
	VictimTxRef        string         `json:"victimTxRef"`
	BackTxRef          string         `json:"backTxRef"`
	VictimAccount      common.Address `json:"victimAccount"`
	VictimTokenIn      common.Address `json:"victimTokenIn"`
	VictimTokenOut     common.Address `json:"victimTokenOut"`
	VictimAmountIn     string         `json:"victimAmountIn"`
	VictimAmountOut    string         `json:"victimAmountOut"`
	FrontrunnerAccount common.Address `json:"frontrunnerAccount"`
	FrontrunnerProfit  string         `json:"frontrunnerProfit"` // may be negative
	ProfitToken        common.Address `json:"profitToken"`       // the front trade's tokenIn
	DetectedAt         int64          `json:"detectedAt"`        // Unix ms
	CreatedAt          int64          `json:"-"`
}

// Description returns a one-line human readable summary.
func (f *Finding) Description() string {
	return fmt.Sprintf("%s sandwiched %s (tx %s) between %s and %s, profit %s of %s",
		f.FrontrunnerAccount.Hex(), f.VictimAccount.Hex(), f.VictimTxRef,
		f.FrontTxRef, f.BackTxRef, f.FrontrunnerProfit, f.ProfitToken.Hex())
}
