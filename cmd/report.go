package cmd

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/khanhnv2901/pagescope/internal/checker"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
	"github.com/spf13/cobra"
)

const (
	htmlTemplatePath     = "templates/report.html"
	markdownTemplatePath = "templates/report.md"
	pdfMaxWarnings       = 40
)

//go:embed templates/report.html templates/report.md
var reportTemplateFS embed.FS

var (
	htmlTemplateFuncs = template.FuncMap{
		"join":          strings.Join,
		"formatTime":    formatShortTimestamp,
		"string":        severityString,
		"severityClass": severityClass,
	}

	markdownTemplateFuncs = texttemplate.FuncMap{
		"join":        strings.Join,
		"formatTime":  formatShortTimestamp,
		"string":      severityString,
		"upper":       strings.ToUpper,
		"escapePipes": escapePipes,
	}

	htmlReportTemplate = template.Must(
		template.New("report.html").Funcs(htmlTemplateFuncs).ParseFS(reportTemplateFS, htmlTemplatePath),
	)
	markdownReportTemplate = texttemplate.Must(
		texttemplate.New("report.md").Funcs(markdownTemplateFuncs).ParseFS(reportTemplateFS, markdownTemplatePath),
	)
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Render a saved run as markdown, HTML, PDF or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		out := cmd.OutOrStdout()
		runID := args[0]

		kind, _ := cmd.Flags().GetString("type")
		kind = strings.ToLower(kind)

		output, err := loadRunOutput(appCtx.ResultsDir, runID)
		if err != nil {
			return err
		}
		data := buildTemplateData(output, time.Now().UTC())

		var (
			content  []byte
			filename string
		)
		switch kind {
		case "json":
			content, err = json.MarshalIndent(output, jsonPrefix, jsonIndent)
			filename = "report.json"
		case "md":
			content, err = executeTemplate(markdownReportTemplate, data)
			filename = "report.md"
		case "html":
			content, err = executeTemplate(htmlReportTemplate, data)
			filename = "report.html"
		case "pdf":
			content, err = generatePDFReportBytes(data)
			filename = "report.pdf"
		default:
			return fmt.Errorf("%w: %s (must be json, md, html, or pdf)", serrors.ErrInvalidFormat, kind)
		}
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}

		reportPath, err := resolveResultsPath(appCtx.ResultsDir, runID, filename)
		if err != nil {
			return fmt.Errorf("resolve report path: %w", err)
		}
		if err := os.WriteFile(reportPath, content, consts.DefaultFilePerm); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		fmt.Fprintf(out, "Report generated: %s\n", reportPath)
		fmt.Fprintf(out, "Format: %s\n", kind)
		fmt.Fprintf(out, "Total targets: %d\n", output.Metadata.TotalTargets)
		return nil
	},
}

// TemplateData holds the data for HTML/PDF/Markdown rendering.
type TemplateData struct {
	Metadata     RunMetadata
	Pages        []PageSummary
	GeneratedAt  string
	Duration     string
	SuccessCount int
	ErrorCount   int
}

// PageSummary flattens one CheckResult for templates.
type PageSummary struct {
	Target      string
	Status      string
	Origin      string
	ScoreLabel  string
	CSP         string
	Aborted     string
	ThirdParty  []string
	Recommended string
	Warnings    []analysis.Warning
	Critical    int
	Dangerous   int
	Suspicious  int
}

func loadRunOutput(resultsDir, runID string) (*RunOutput, error) {
	path, err := resolveResultsPath(resultsDir, runID, resultsFileName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no results found for run %s", runID)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var output RunOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if output.Metadata.RunID == "" {
		output.Metadata.RunID = runID
	}
	output.Metadata.TotalTargets = len(output.Results)
	return &output, nil
}

func buildTemplateData(output *RunOutput, now time.Time) TemplateData {
	data := TemplateData{
		Metadata:    output.Metadata,
		GeneratedAt: now.Format(time.RFC3339),
		Duration:    formatDurationLabel(output.Metadata.CompleteAt.Sub(output.Metadata.StartAt).Seconds()),
	}

	for i := range output.Results {
		r := &output.Results[i]
		if r.Status == "ok" {
			data.SuccessCount++
		} else {
			data.ErrorCount++
		}
		data.Pages = append(data.Pages, summarizePage(r))
	}
	return data
}

func summarizePage(r *checker.CheckResult) PageSummary {
	page := PageSummary{Target: r.Target, Status: r.Status, ScoreLabel: "-", CSP: "none"}
	if r.Report == nil {
		if r.Error != "" {
			page.Aborted = r.Error
		}
		return page
	}

	rep := r.Report
	page.Origin = rep.Origin
	page.ScoreLabel = fmt.Sprintf("%d (%s)", rep.Score, rep.Grade)
	if !rep.CSP.Missing && rep.CSP.Policy != nil {
		page.CSP = fmt.Sprintf("[%s] %s", rep.CSP.Source, rep.CSP.Policy.String())
	}
	page.Aborted = rep.Aborted
	page.ThirdParty = rep.ThirdParty
	page.Recommended = rep.Recommended
	page.Warnings = filterWarnings(rep.Warnings, analysis.SeverityGood)

	counts := rep.Counts()
	page.Critical = counts[analysis.SeverityCritical] + counts[analysis.SeverityFetchError]
	page.Dangerous = counts[analysis.SeverityDangerous] + counts[analysis.SeverityScam]
	page.Suspicious = counts[analysis.SeveritySuspicious]
	return page
}

type templateExecutor interface {
	Execute(w io.Writer, data any) error
}

func executeTemplate(tmpl templateExecutor, data TemplateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generatePDFReportBytes(data TemplateData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("pagescope report "+data.Metadata.RunID, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "pagescope report", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Run ID: %s", data.Metadata.RunID), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Started: %s", formatShortTimestamp(data.Metadata.StartAt)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Completed: %s (%s)", formatShortTimestamp(data.Metadata.CompleteAt), data.Duration), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Targets: %d | Analyzed: %d | Failed: %d",
		data.Metadata.TotalTargets, data.SuccessCount, data.ErrorCount), "", 1, "", false, 0, "")
	pdf.Ln(5)

	for _, page := range data.Pages {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}

		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s - %s", page.Target, page.ScoreLabel)), "", 1, "", true, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr("CSP: "+page.CSP), "", "", false)
		if page.Aborted != "" {
			pdf.MultiCell(0, 5, tr("Script analysis aborted: "+page.Aborted), "", "", false)
		}
		if len(page.ThirdParty) > 0 {
			pdf.MultiCell(0, 5, tr("Third-party script sites: "+strings.Join(page.ThirdParty, ", ")), "", "", false)
		}

		for i, w := range page.Warnings {
			if i == pdfMaxWarnings {
				pdf.SetFont("Arial", "I", 8)
				pdf.CellFormat(0, 4, fmt.Sprintf("... %d additional warnings omitted ...", len(page.Warnings)-pdfMaxWarnings), "", 1, "", false, 0, "")
				break
			}
			if pdf.GetY() > 270 {
				pdf.AddPage()
			}
			r, g, b := severityRGB(w.Severity)
			pdf.SetTextColor(r, g, b)
			pdf.SetFont("Arial", "B", 8)
			pdf.CellFormat(25, 4, w.Severity.Label(), "", 0, "", false, 0, "")
			pdf.SetTextColor(0, 0, 0)
			pdf.SetFont("Arial", "", 8)
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("(%d) %s", w.Penalty, w.Message)), "", "", false)
		}

		if page.Recommended != "" {
			pdf.SetFont("Courier", "", 7)
			pdf.MultiCell(0, 4, tr("Suggested policy: "+page.Recommended), "", "", false)
		}
		pdf.Ln(3)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatShortTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

func formatDurationLabel(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func severityString(s analysis.Severity) string {
	return string(s)
}

func severityClass(s analysis.Severity) string {
	return "sev-" + strings.ToLower(string(s))
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func severityRGB(s analysis.Severity) (int, int, int) {
	switch s {
	case analysis.SeverityCritical, analysis.SeverityFetchError:
		return 164, 14, 38
	case analysis.SeverityDangerous, analysis.SeverityScam:
		return 207, 34, 46
	case analysis.SeveritySuspicious:
		return 154, 103, 0
	case analysis.SeverityGood:
		return 26, 127, 55
	default:
		return 9, 105, 218
	}
}

func init() {
	reportCmd.Flags().StringP("type", "t", "md", "report format: json, md, html, or pdf")
}
