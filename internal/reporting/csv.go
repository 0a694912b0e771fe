package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the report's findings as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("finding_id,block_number,router,frontrunner,victim,")
	sb.WriteString("front_tx,victim_tx,back_tx,profit,profit_token\n")

	// Rows
	for _, f := range r.Findings {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%s,%s,%s,%s,%s,%s\n",
			f.FindingID,
			f.BlockNumber,
			f.Router.Hex(),
			f.Frontrunner.Hex(),
			f.Victim.Hex(),
			f.FrontTxRef,
			f.VictimTxRef,
			f.BackTxRef,
			f.Profit,
			f.ProfitToken.Hex(),
		))
	}

	return sb.String()
}

// RenderFrontrunnerCSV renders per-frontrunner totals, one row per profit token.
func RenderFrontrunnerCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("frontrunner,findings,victims,profit_token,profit\n")
	for _, row := range r.Frontrunners {
		for _, p := range row.Profits {
			sb.WriteString(fmt.Sprintf("%s,%d,%d,%s,%s\n",
				row.Account.Hex(), row.Findings, row.Victims, p.Token.Hex(), p.Amount))
		}
	}

	return sb.String()
}
