package formatter

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/keisuke-w/tokenwatch/internal/quota"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

// QuotaRenderer renders a merged quota report: one row per model plus the
// per-account failure lines.
type QuotaRenderer struct {
	out  io.Writer
	json bool
}

func NewQuotaRenderer(out io.Writer, asJSON bool) *QuotaRenderer {
	return &QuotaRenderer{out: out, json: asJSON}
}

func (r *QuotaRenderer) Render(report *quota.Report) error {
	if r.json {
		data, err := sonic.ConfigDefault.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprintln(r.out, string(data))
		return err
	}

	if len(report.Models) == 0 {
		fmt.Fprintln(r.out, "No quota information available.")
	} else {
		tbl := newTable(
			[]string{"Model", "Remaining", "Resets"},
			[]align{alignLeft, alignRight, alignLeft},
		)
		for _, m := range report.Models {
			reset := "-"
			if m.ResetTime > 0 {
				reset = util.FormatEpochMs(m.ResetTime)
			}
			tbl.addRow(m.Model, util.FormatPercent(m.RemainingFraction), reset)
		}
		tbl.render(r.out)
	}

	fmt.Fprintf(r.out, "\n%d/%d accounts reported.\n", report.SuccessCount, report.Total)

	for _, failure := range report.Failures {
		if failure.Revoked {
			fmt.Fprintf(r.out, "  %s: refresh token revoked, re-authenticate this account\n", failure.Account)
			continue
		}
		fmt.Fprintf(r.out, "  %s: %s\n", failure.Account, failure.Message)
	}
	return nil
}
