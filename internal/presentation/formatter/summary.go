package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/keisuke-w/tokenwatch/internal/core/mapping"
	"github.com/keisuke-w/tokenwatch/internal/data/aggregator"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

// SummaryRenderer renders a sectioned plain-text report.
type SummaryRenderer struct {
	out io.Writer
}

func NewSummaryRenderer(out io.Writer) *SummaryRenderer {
	return &SummaryRenderer{out: out}
}

func (r *SummaryRenderer) Render(result *aggregator.Result) error {
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(r.out, rule)
	fmt.Fprintln(r.out, "Usage Summary")
	fmt.Fprintln(r.out, rule)
	fmt.Fprintln(r.out)

	if result.MessageCount == 0 {
		fmt.Fprintln(r.out, "No usage records in the selected window.")
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, rule)
		return nil
	}

	fmt.Fprintln(r.out, "Token Breakdown (priced):")
	fmt.Fprintf(r.out, "  Input:        %s\n", util.FormatNumber(result.PricedTokens.Input))
	fmt.Fprintf(r.out, "  Output:       %s\n", util.FormatNumber(result.PricedTokens.Output))
	fmt.Fprintf(r.out, "  Reasoning:    %s\n", util.FormatNumber(result.PricedTokens.Reasoning))
	fmt.Fprintf(r.out, "  Cache Read:   %s\n", util.FormatNumber(result.PricedTokens.CacheRead))
	fmt.Fprintf(r.out, "  Cache Write:  %s\n", util.FormatNumber(result.PricedTokens.CacheWrite))
	fmt.Fprintf(r.out, "  Total:        %s\n", util.FormatNumber(result.PricedTokens.Total()))
	fmt.Fprintln(r.out)

	fmt.Fprintln(r.out, "Cost Breakdown:")
	fmt.Fprintf(r.out, "  Total Cost: %s USD\n", util.FormatCurrency(result.TotalCost))
	fmt.Fprintln(r.out)

	fmt.Fprintf(r.out, "Messages: %s across %s sessions\n",
		util.FormatNumber(int64(result.MessageCount)),
		util.FormatNumber(int64(result.SessionCount)))
	fmt.Fprintln(r.out)

	if len(result.ByPricingKey) > 0 {
		fmt.Fprintln(r.out, "Model Usage:")
		fmt.Fprintln(r.out, strings.Repeat("-", 60))
		for _, row := range result.ByPricingKey {
			fmt.Fprintf(r.out, "\n%s/%s:\n", row.Provider, row.Model)
			fmt.Fprintf(r.out, "  Total Tokens:  %s\n", util.FormatNumber(row.Tokens.Total()))
			fmt.Fprintf(r.out, "  Messages:      %s\n", util.FormatNumber(int64(row.Messages)))
			fmt.Fprintf(r.out, "  Cost:          %s USD\n", util.FormatCurrency(row.Cost))
		}
		fmt.Fprintln(r.out)
	}

	if len(result.Unknown) > 0 {
		fmt.Fprintln(r.out, "Not priced:")
		for _, row := range result.Unknown {
			fmt.Fprintf(r.out, "  %s (%s): %s tokens, %s messages\n",
				unknownLabel(row.Key), describeMapping(row.Key),
				util.FormatNumber(row.Tokens.Total()),
				util.FormatNumber(int64(row.Messages)))
		}
		fmt.Fprintln(r.out)
	}

	fmt.Fprintln(r.out, rule)
	return nil
}

func unknownLabel(key mapping.UnknownKey) string {
	if key.SourceProvider != "" {
		return key.SourceProvider + "/" + key.SourceModel
	}
	return key.SourceModel
}

// describeMapping explains why the row could not be priced.
func describeMapping(key mapping.UnknownKey) string {
	if key.Unpriced {
		return key.MappedProvider + "/" + key.MappedModel + " has no pricing"
	}
	return "no matching provider"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
