package checker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/khanhnv2901/pagescope/internal/checker/csp"
	"github.com/khanhnv2901/pagescope/internal/checker/inline"
	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// Page is one HTTP response ready for analysis.
type Page struct {
	Body      []byte
	Truncated bool
	// Headers holds lowercase header names. Repeated headers are joined with ", ".
	Headers map[string]string
	Origin  string
	Status  int
}

// PageReport is everything learned about one page.
type PageReport struct {
	ID          string               `json:"id"`
	Origin      string               `json:"origin"`
	Score       int                  `json:"score"`
	Grade       string               `json:"grade"`
	Warnings    []analysis.Warning   `json:"warnings"`
	CSP         csp.ClassifiedResult `json:"csp"`
	Scripts     *scripts.Result      `json:"scripts,omitempty"`
	ThirdParty  []string             `json:"third_party,omitempty"`
	Recommended string               `json:"recommended_csp,omitempty"`
	Aborted     string               `json:"aborted,omitempty"`
}

// Counts returns how many warnings the report holds per severity.
func (r *PageReport) Counts() map[analysis.Severity]int {
	out := make(map[analysis.Severity]int)
	for _, w := range r.Warnings {
		out[w.Severity]++
	}
	return out
}

// AnalyzePage runs the full pipeline over page, emitting into ctx.
//
// A structural problem in the body stops script extraction; the policy is then
// still analyzed from the headers, without script matching.
func AnalyzePage(ctx *analysis.Context, page Page) *PageReport {
	report := &PageReport{ID: uuid.NewString(), Origin: page.Origin}
	log := ctx.Logger()

	if ct := page.Headers["content-type"]; !isHTML(ct) {
		ctx.Addf(analysis.SeverityInfo, consts.PenaltyInformational,
			"Response is not HTML (content-type: %s), page content was not analyzed.", ct)
		report.CSP = csp.Analyze(ctx, page.Headers, "", nil, nil)
		return finish(ctx, report)
	}

	res, err := extract(ctx, page)
	if err != nil {
		log.Debugw("script extraction aborted", "origin", page.Origin, "reason", err)
		report.Aborted = err.Error()
	}
	report.Scripts = res

	meta := ""
	if res != nil {
		meta, _ = scripts.ExtractMetaCSP(page.Body, res.Head)
	}
	if err != nil {
		report.CSP = csp.Analyze(ctx, page.Headers, meta, page.Body, nil)
		return finish(ctx, report)
	}
	report.CSP = csp.Analyze(ctx, page.Headers, meta, page.Body, res)

	inline.AnalyzeOrigins(ctx, res)
	inline.Scan(ctx, page.Body, res)
	inline.AnalyzeRatio(ctx, res)

	report.ThirdParty = scripts.ThirdPartySites(res, page.Origin)
	if len(report.ThirdParty) > 0 {
		ctx.Addf(analysis.SeverityInfo, consts.PenaltyInformational,
			"Page loads scripts from %d third-party site(s): %s", len(report.ThirdParty), strings.Join(report.ThirdParty, ", "))
	}
	report.Recommended = csp.Recommend(page.Body, res, page.Origin)
	return finish(ctx, report)
}

func extract(ctx *analysis.Context, page Page) (*scripts.Result, error) {
	rng, err := scripts.FindHTMLRange(ctx, page.Body, page.Truncated)
	if err != nil {
		return nil, fmt.Errorf("html range: %w", err)
	}
	res, err := scripts.Extract(ctx, page.Body, rng)
	if err != nil {
		return res, fmt.Errorf("extract scripts: %w", err)
	}
	return res, nil
}

func finish(ctx *analysis.Context, report *PageReport) *PageReport {
	report.Warnings = ctx.Warnings()
	report.Score = ctx.Score()
	report.Grade = calculateGrade(report.Score, consts.StartingScore)
	ctx.Logger().Debugw("page analyzed", "origin", report.Origin, "score", report.Score, "warnings", len(report.Warnings))
	return report
}

// calculateGrade converts a score to a letter grade
func calculateGrade(score, maxScore int) string {
	if maxScore <= 0 || score <= 0 {
		return "F"
	}
	percentage := float64(score) / float64(maxScore) * 100

	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	case percentage >= 50:
		return "E"
	default:
		return "F"
	}
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
