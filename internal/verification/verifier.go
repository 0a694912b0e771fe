// Package verification checks that stored findings are reproduced by
// replaying the stored swap observations through a fresh detector.
package verification

import (
	"context"

	"sandwich-watch/internal/domain"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// VerificationResult contains the result of verifying a single finding.
type VerificationResult struct {
	FindingID   string            // verified finding ID
	Match       bool              // true if all fields match
	Divergences []FieldDivergence // list of divergent fields
}

// VerificationReport contains results for a verified block range.
type VerificationReport struct {
	FromBlock         uint64
	ToBlock           uint64
	StoredFindings    int                  // findings loaded from the store
	ReplayedFindings  int                  // findings produced by the replay
	MatchedFindings   int                  // present in both with identical fields
	DivergentFindings int                  // present in both with differing fields
	Missing           []string             // stored but not reproduced
	Unexpected        []string             // reproduced but not stored
	Results           []VerificationResult // one per finding present in both
}

// Consistent reports whether the replay reproduced exactly the stored findings.
func (r *VerificationReport) Consistent() bool {
	return r.DivergentFindings == 0 && len(r.Missing) == 0 && len(r.Unexpected) == 0
}

// Verifier interface for finding replay verification.
type Verifier interface {
	// Verify replays the observations in [from, to] and compares the
	// resulting findings with those stored for the same range.
	Verify(ctx context.Context, from, to uint64) (*VerificationReport, error)
}

// CompareFindings compares two findings and returns divergences.
// Detection and storage timestamps are not compared.
func CompareFindings(stored, replayed *domain.Finding) []FieldDivergence {
	var divergences []FieldDivergence

	check := func(field string, expected, actual interface{}) {
		if expected != actual {
			divergences = append(divergences, FieldDivergence{
				Field:    field,
				Expected: expected,
				Actual:   actual,
			})
		}
	}

	check("FindingID", stored.FindingID, replayed.FindingID)
	check("Router", stored.Router, replayed.Router)
	check("BlockNumber", stored.BlockNumber, replayed.BlockNumber)
	check("FrontTxRef", stored.FrontTxRef, replayed.FrontTxRef)
	check("VictimTxRef", stored.VictimTxRef, replayed.VictimTxRef)
	check("BackTxRef", stored.BackTxRef, replayed.BackTxRef)
	check("VictimAccount", stored.VictimAccount, replayed.VictimAccount)
	check("VictimTokenIn", stored.VictimTokenIn, replayed.VictimTokenIn)
	check("VictimTokenOut", stored.VictimTokenOut, replayed.VictimTokenOut)
	check("VictimAmountIn", stored.VictimAmountIn, replayed.VictimAmountIn)
	check("VictimAmountOut", stored.VictimAmountOut, replayed.VictimAmountOut)
	check("FrontrunnerAccount", stored.FrontrunnerAccount, replayed.FrontrunnerAccount)
	check("FrontrunnerProfit", stored.FrontrunnerProfit, replayed.FrontrunnerProfit)
	check("ProfitToken", stored.ProfitToken, replayed.ProfitToken)

	return divergences
}
