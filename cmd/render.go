package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/khanhnv2901/pagescope/internal/checker"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
)

var summarySeverities = []analysis.Severity{
	analysis.SeverityCritical,
	analysis.SeverityDangerous,
	analysis.SeverityScam,
	analysis.SeveritySuspicious,
	analysis.SeverityTracking,
	analysis.SeverityInfo,
}

func renderRun(out io.Writer, output *RunOutput, format string, minSeverity analysis.Severity) error {
	switch strings.ToLower(format) {
	case "json":
		return writeJSON(out, output)
	case "", "text":
		for i := range output.Results {
			if i > 0 {
				fmt.Fprintln(out)
			}
			renderResultText(out, &output.Results[i], minSeverity)
		}
		if len(output.Results) > 1 {
			fmt.Fprintln(out)
			renderSummaryTable(out, output.Results)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s (must be text or json)", serrors.ErrInvalidFormat, format)
	}
}

func renderPageReport(out io.Writer, report *checker.PageReport, format string, minSeverity analysis.Severity) error {
	switch strings.ToLower(format) {
	case "json":
		return writeJSON(out, report)
	case "", "text":
		renderReportText(out, report, minSeverity)
		return nil
	default:
		return fmt.Errorf("%w: %s (must be text or json)", serrors.ErrInvalidFormat, format)
	}
}

func writeJSON(out io.Writer, v any) error {
	b, err := json.MarshalIndent(v, jsonPrefix, jsonIndent)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

func renderResultText(out io.Writer, res *checker.CheckResult, minSeverity analysis.Severity) {
	status := formatStatusWithColor(res.Status)
	if res.HTTPStatus > 0 {
		status = fmt.Sprintf("%s (HTTP %d, %.0f ms)", status, res.HTTPStatus, res.ResponseTime)
	}
	fmt.Fprintf(out, "%s  %s\n", colorInfo(res.Target), status)
	if res.Report != nil {
		renderReportText(out, res.Report, minSeverity)
	} else if res.Error != "" {
		fmt.Fprintf(out, "  %s %s\n", colorError("error:"), res.Error)
	}
}

func renderReportText(out io.Writer, report *checker.PageReport, minSeverity analysis.Severity) {
	fmt.Fprintf(out, "Origin: %s\n", report.Origin)
	fmt.Fprintf(out, "Score:  %s\n", formatScore(report.Score, report.Grade))
	if report.Aborted != "" {
		fmt.Fprintf(out, "Script analysis aborted: %s\n", report.Aborted)
	}

	if report.Scripts != nil {
		fmt.Fprintf(out, "Scripts: %d total\n", len(report.Scripts.Targets))
	}
	switch {
	case report.CSP.Missing:
		fmt.Fprintln(out, "CSP:    none")
	case report.CSP.Policy != nil:
		fmt.Fprintf(out, "CSP:    [%s] %s\n", report.CSP.Source, report.CSP.Policy.String())
	}

	warnings := filterWarnings(report.Warnings, minSeverity)
	if len(warnings) > 0 {
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEVERITY\tPENALTY\tMESSAGE")
		for _, w := range warnings {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", formatSeverity(w.Severity), w.Penalty, w.Message)
		}
		_ = tw.Flush()
	}

	if len(report.ThirdParty) > 0 {
		fmt.Fprintf(out, "\nThird-party script sites: %s\n", strings.Join(report.ThirdParty, ", "))
	}
	if report.Recommended != "" {
		fmt.Fprintf(out, "\nSuggested policy:\n  %s\n", report.Recommended)
	}
}

func renderSummaryTable(out io.Writer, results []checker.CheckResult) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"TARGET", "STATUS", "SCORE"}
	for _, s := range summarySeverities {
		header = append(header, s.Label())
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for i := range results {
		r := &results[i]
		row := []string{r.Target, r.Status, "-"}
		var counts map[analysis.Severity]int
		if r.Report != nil {
			row[2] = fmt.Sprintf("%d (%s)", r.Report.Score, r.Report.Grade)
			counts = r.Report.Counts()
		}
		for _, s := range summarySeverities {
			row = append(row, fmt.Sprintf("%d", counts[s]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// filterWarnings drops warnings below minSeverity and orders the rest most severe first.
func filterWarnings(warnings []analysis.Warning, minSeverity analysis.Severity) []analysis.Warning {
	out := make([]analysis.Warning, 0, len(warnings))
	for _, w := range warnings {
		if w.Severity.Rank() >= minSeverity.Rank() {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}
