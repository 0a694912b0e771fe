package reporting

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Report summarizes stored sandwich findings over a block range.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	FromBlock   uint64
	ToBlock     uint64

	Summary Summary

	// Frontrunners sorted by findings DESC, then account ASC
	Frontrunners []FrontrunnerRow

	// Profit per token sorted by token ASC
	TokenProfits []TokenProfitRow

	// Findings sorted by (block_number, finding_id)
	Findings []FindingRow
}

// Summary contains totals across all findings in the range.
type Summary struct {
	TotalFindings      int
	UniqueFrontrunners int
	UniqueVictims      int
	UnprofitableCount  int // findings with negative profit
	FirstBlock         uint64
	LastBlock          uint64
}

// TokenAmount is a signed decimal amount of one token.
type TokenAmount struct {
	Token  common.Address
	Amount string
}

// FrontrunnerRow aggregates findings attributed to one account.
type FrontrunnerRow struct {
	Account  common.Address
	Findings int
	Victims  int
	Profits  []TokenAmount // summed per profit token, sorted by token
}

// TokenProfitRow aggregates profit across all frontrunners for one token.
type TokenProfitRow struct {
	Token       common.Address
	Findings    int
	TotalProfit string
}

// FindingRow is one finding as listed in reports.
type FindingRow struct {
	FindingID   string
	BlockNumber uint64
	Router      common.Address
	Frontrunner common.Address
	Victim      common.Address
	FrontTxRef  string
	VictimTxRef string
	BackTxRef   string
	Profit      string
	ProfitToken common.Address
}
