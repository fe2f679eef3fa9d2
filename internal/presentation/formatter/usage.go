package formatter

import (
	"fmt"
	"io"

	"github.com/keisuke-w/tokenwatch/internal/data/aggregator"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

// UsageRenderer renders one aggregation result.
type UsageRenderer interface {
	Render(result *aggregator.Result) error
}

// NewUsageRenderer selects a renderer by output kind: table, summary or json.
func NewUsageRenderer(kind string, out io.Writer, limit int) (UsageRenderer, error) {
	switch kind {
	case "", "table":
		return &TableRenderer{out: out, limit: limit}, nil
	case "summary":
		return &SummaryRenderer{out: out}, nil
	case "json":
		return &JSONRenderer{out: out}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s (want table, summary or json)", kind)
	}
}

// TableRenderer renders the priced breakdowns and the unknown section as
// bordered tables.
type TableRenderer struct {
	out   io.Writer
	limit int // 0 means all rows
}

func NewTableRenderer(out io.Writer, limit int) *TableRenderer {
	return &TableRenderer{out: out, limit: limit}
}

func (r *TableRenderer) Render(result *aggregator.Result) error {
	if result.MessageCount == 0 {
		fmt.Fprintln(r.out, "No usage records in the selected window.")
		return nil
	}

	r.renderModels(result)
	if len(result.BySession) > 0 {
		fmt.Fprintln(r.out)
		r.renderSessions(result)
	}
	if len(result.Unknown) > 0 {
		fmt.Fprintln(r.out)
		r.renderUnknown(result)
	}

	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "Messages: %s  Sessions: %s  Total cost: %s\n",
		util.FormatNumber(int64(result.MessageCount)),
		util.FormatNumber(int64(result.SessionCount)),
		util.FormatCurrency(result.TotalCost))
	return nil
}

func (r *TableRenderer) renderModels(result *aggregator.Result) {
	tbl := newTable(
		[]string{"Provider", "Model", "Input", "Output", "Reasoning", "Cache Read", "Cache Write", "Total", "Cost (USD)"},
		[]align{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	)

	for _, row := range limitRows(result.ByPricingKey, r.limit) {
		tbl.addRow(
			row.Provider,
			row.Model,
			util.FormatNumber(row.Tokens.Input),
			util.FormatNumber(row.Tokens.Output),
			util.FormatNumber(row.Tokens.Reasoning),
			util.FormatNumber(row.Tokens.CacheRead),
			util.FormatNumber(row.Tokens.CacheWrite),
			util.FormatNumber(row.Tokens.Total()),
			util.FormatCurrency(row.Cost),
		)
	}
	tbl.addRow(
		"Total", "",
		util.FormatNumber(result.PricedTokens.Input),
		util.FormatNumber(result.PricedTokens.Output),
		util.FormatNumber(result.PricedTokens.Reasoning),
		util.FormatNumber(result.PricedTokens.CacheRead),
		util.FormatNumber(result.PricedTokens.CacheWrite),
		util.FormatNumber(result.PricedTokens.Total()),
		util.FormatCurrency(result.TotalCost),
	)
	tbl.render(r.out)
}

func (r *TableRenderer) renderSessions(result *aggregator.Result) {
	// Leave the title column whatever the terminal has to spare after the
	// fixed columns; 40 is a floor so narrow terminals stay readable.
	titleWidth := terminalWidth() - 70
	if titleWidth < 40 {
		titleWidth = 40
	}

	tbl := newTable(
		[]string{"Session", "Title", "Tokens", "Messages", "Cost (USD)"},
		[]align{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
	for _, row := range limitRows(result.BySession, r.limit) {
		tbl.addRow(
			row.SessionID,
			truncate(row.Title, titleWidth),
			util.FormatNumber(row.Tokens.Total()),
			util.FormatNumber(int64(row.Messages)),
			util.FormatCurrency(row.Cost),
		)
	}
	tbl.render(r.out)
}

func (r *TableRenderer) renderUnknown(result *aggregator.Result) {
	fmt.Fprintln(r.out, "Not priced:")
	tbl := newTable(
		[]string{"Provider", "Model", "Mapped To", "Tokens", "Messages"},
		[]align{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
	for _, row := range limitRows(result.Unknown, r.limit) {
		tbl.addRow(
			orDash(row.Key.SourceProvider),
			row.Key.SourceModel,
			describeMapping(row.Key),
			util.FormatNumber(row.Tokens.Total()),
			util.FormatNumber(int64(row.Messages)),
		)
	}
	tbl.render(r.out)
}

func limitRows[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
