package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Sandwich Findings Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Blocks: %d - %d\n\n", r.FromBlock, r.ToBlock))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Findings | %d |\n", r.Summary.TotalFindings))
	sb.WriteString(fmt.Sprintf("| Unique Frontrunners | %d |\n", r.Summary.UniqueFrontrunners))
	sb.WriteString(fmt.Sprintf("| Unique Victims | %d |\n", r.Summary.UniqueVictims))
	sb.WriteString(fmt.Sprintf("| Unprofitable Sandwiches | %d |\n", r.Summary.UnprofitableCount))
	if r.Summary.TotalFindings > 0 {
		sb.WriteString(fmt.Sprintf("| First Block | %d |\n", r.Summary.FirstBlock))
		sb.WriteString(fmt.Sprintf("| Last Block | %d |\n", r.Summary.LastBlock))
	}
	sb.WriteString("\n")

	// Frontrunners
	sb.WriteString("## Frontrunners\n\n")
	if len(r.Frontrunners) > 0 {
		sb.WriteString("| Account | Findings | Victims | Profit |\n")
		sb.WriteString("|---------|----------|---------|--------|\n")
		for _, row := range r.Frontrunners {
			profits := make([]string, len(row.Profits))
			for i, p := range row.Profits {
				profits[i] = fmt.Sprintf("%s %s", p.Amount, p.Token.Hex())
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
				row.Account.Hex(), row.Findings, row.Victims, strings.Join(profits, "<br>")))
		}
	} else {
		sb.WriteString("No frontrunners detected.\n")
	}
	sb.WriteString("\n")

	// Profit by token
	sb.WriteString("## Profit by Token\n\n")
	if len(r.TokenProfits) > 0 {
		sb.WriteString("| Token | Findings | Total Profit |\n")
		sb.WriteString("|-------|----------|--------------|\n")
		for _, row := range r.TokenProfits {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", row.Token.Hex(), row.Findings, row.TotalProfit))
		}
	} else {
		sb.WriteString("No profit data available.\n")
	}
	sb.WriteString("\n")

	// Findings
	sb.WriteString("## Findings\n\n")
	if len(r.Findings) > 0 {
		sb.WriteString("| Block | Frontrunner | Victim | Front Tx | Victim Tx | Back Tx | Profit |\n")
		sb.WriteString("|-------|-------------|--------|----------|-----------|---------|--------|\n")
		for _, f := range r.Findings {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |\n",
				f.BlockNumber, f.Frontrunner.Hex(), f.Victim.Hex(),
				f.FrontTxRef, f.VictimTxRef, f.BackTxRef, f.Profit))
		}
	} else {
		sb.WriteString("No findings in range.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
