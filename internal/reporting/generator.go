package reporting

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"sandwich-watch/internal/domain"
)

// FindingSource loads findings by block range.
// storage.FindingStore implementations satisfy it.
type FindingSource interface {
	GetByBlockRange(ctx context.Context, from, to uint64) ([]*domain.Finding, error)
}

// Generator produces reports from stored findings.
type Generator struct {
	source FindingSource
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source FindingSource) *Generator {
	return &Generator{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report over findings whose back trade lies in [from, to].
func (g *Generator) Generate(ctx context.Context, from, to uint64) (*Report, error) {
	findings, err := g.source.GetByBlockRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}

	rows := buildFindingRows(findings)

	frontrunners, err := buildFrontrunnerRows(findings)
	if err != nil {
		return nil, err
	}

	tokenProfits, err := buildTokenProfitRows(findings)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:  g.now(),
		FromBlock:    from,
		ToBlock:      to,
		Summary:      buildSummary(findings),
		Frontrunners: frontrunners,
		TokenProfits: tokenProfits,
		Findings:     rows,
	}, nil
}

func buildSummary(findings []*domain.Finding) Summary {
	s := Summary{TotalFindings: len(findings)}
	if len(findings) == 0 {
		return s
	}

	frontrunners := make(map[common.Address]struct{})
	victims := make(map[common.Address]struct{})
	s.FirstBlock = findings[0].BlockNumber
	s.LastBlock = findings[0].BlockNumber

	for _, f := range findings {
		frontrunners[f.FrontrunnerAccount] = struct{}{}
		victims[f.VictimAccount] = struct{}{}
		if f.BlockNumber < s.FirstBlock {
			s.FirstBlock = f.BlockNumber
		}
		if f.BlockNumber > s.LastBlock {
			s.LastBlock = f.BlockNumber
		}
		if len(f.FrontrunnerProfit) > 0 && f.FrontrunnerProfit[0] == '-' {
			s.UnprofitableCount++
		}
	}

	s.UniqueFrontrunners = len(frontrunners)
	s.UniqueVictims = len(victims)
	return s
}

func buildFindingRows(findings []*domain.Finding) []FindingRow {
	rows := make([]FindingRow, len(findings))
	for i, f := range findings {
		rows[i] = FindingRow{
			FindingID:   f.FindingID,
			BlockNumber: f.BlockNumber,
			Router:      f.Router,
			Frontrunner: f.FrontrunnerAccount,
			Victim:      f.VictimAccount,
			FrontTxRef:  f.FrontTxRef,
			VictimTxRef: f.VictimTxRef,
			BackTxRef:   f.BackTxRef,
			Profit:      f.FrontrunnerProfit,
			ProfitToken: f.ProfitToken,
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BlockNumber != rows[j].BlockNumber {
			return rows[i].BlockNumber < rows[j].BlockNumber
		}
		return rows[i].FindingID < rows[j].FindingID
	})
	return rows
}

// buildFrontrunnerRows groups findings by frontrunner and sums profit per token.
func buildFrontrunnerRows(findings []*domain.Finding) ([]FrontrunnerRow, error) {
	type acc struct {
		findings int
		victims  map[common.Address]struct{}
		profits  map[common.Address]*big.Int
	}
	groups := make(map[common.Address]*acc)

	for _, f := range findings {
		profit, err := parseProfit(f)
		if err != nil {
			return nil, err
		}

		a := groups[f.FrontrunnerAccount]
		if a == nil {
			a = &acc{
				victims: make(map[common.Address]struct{}),
				profits: make(map[common.Address]*big.Int),
			}
			groups[f.FrontrunnerAccount] = a
		}
		a.findings++
		a.victims[f.VictimAccount] = struct{}{}
		if a.profits[f.ProfitToken] == nil {
			a.profits[f.ProfitToken] = new(big.Int)
		}
		a.profits[f.ProfitToken].Add(a.profits[f.ProfitToken], profit)
	}

	rows := make([]FrontrunnerRow, 0, len(groups))
	for account, a := range groups {
		row := FrontrunnerRow{
			Account:  account,
			Findings: a.findings,
			Victims:  len(a.victims),
		}
		for token, sum := range a.profits {
			row.Profits = append(row.Profits, TokenAmount{Token: token, Amount: sum.String()})
		}
		sort.Slice(row.Profits, func(i, j int) bool {
			return bytes.Compare(row.Profits[i].Token[:], row.Profits[j].Token[:]) < 0
		})
		rows = append(rows, row)
	}

	// Sort by (findings DESC, account ASC)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Findings != rows[j].Findings {
			return rows[i].Findings > rows[j].Findings
		}
		return bytes.Compare(rows[i].Account[:], rows[j].Account[:]) < 0
	})
	return rows, nil
}

// buildTokenProfitRows sums profit per profit token across all frontrunners.
func buildTokenProfitRows(findings []*domain.Finding) ([]TokenProfitRow, error) {
	counts := make(map[common.Address]int)
	sums := make(map[common.Address]*big.Int)

	for _, f := range findings {
		profit, err := parseProfit(f)
		if err != nil {
			return nil, err
		}
		if sums[f.ProfitToken] == nil {
			sums[f.ProfitToken] = new(big.Int)
		}
		sums[f.ProfitToken].Add(sums[f.ProfitToken], profit)
		counts[f.ProfitToken]++
	}

	rows := make([]TokenProfitRow, 0, len(sums))
	for token, sum := range sums {
		rows = append(rows, TokenProfitRow{
			Token:       token,
			Findings:    counts[token],
			TotalProfit: sum.String(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return bytes.Compare(rows[i].Token[:], rows[j].Token[:]) < 0
	})
	return rows, nil
}

func parseProfit(f *domain.Finding) (*big.Int, error) {
	profit, ok := new(big.Int).SetString(f.FrontrunnerProfit, 10)
	if !ok {
		return nil, fmt.Errorf("finding %s: invalid profit %q", f.FindingID, f.FrontrunnerProfit)
	}
	return profit, nil
}
