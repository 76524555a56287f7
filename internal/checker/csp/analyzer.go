package csp

import (
	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// Header names, lowercase as delivered by the fetcher.
const (
	HeaderCSP           = "content-security-policy"
	HeaderCSPReportOnly = "content-security-policy-report-only"
)

// ClassifiedResult is the outcome of analyzing the policy of one response.
type ClassifiedResult struct {
	Policy  *Policy               `json:"policy"`
	Flags   map[string]Flags      `json:"flags"`
	Traits  map[string]SourceInfo `json:"traits"`
	Source  Source                `json:"source,omitempty"`
	Missing bool                  `json:"missing"`
	Match   *MatchReport          `json:"match,omitempty"`
}

// Analyze selects the effective policy from the headers and the <meta
// http-equiv> policy, then runs flag derivation, the misconfiguration rules
// and the script matcher. res may be nil when script extraction aborted, in
// which case the matcher is skipped. A page without any policy yields a
// result with Missing set and an empty policy.
func Analyze(ctx *analysis.Context, headers map[string]string, meta string, body []byte, res *scripts.Result) ClassifiedResult {
	header := headers[HeaderCSP]
	reportOnly := headers[HeaderCSPReportOnly]

	var (
		policy *Policy
		src    Source
	)
	switch {
	case header != "":
		src = SourceHeader
		policy = Parse(ctx, header)
		if meta != "" {
			policy = Merge(ctx, policy, Parse(ctx, meta))
		}
	case meta != "":
		// The meta policy enforces; a report-only header next to it only reports.
		src = SourceMeta
		msg := "CSP is only delivered through <meta http-equiv>."
		if reportOnly != "" {
			msg = "CSP is enforced through <meta http-equiv>; the Content-Security-Policy-Report-Only header only reports violations."
		}
		ctx.Add(analysis.Warning{
			Message:  msg,
			Severity: analysis.SeverityInfo,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceBody,
		})
		policy = Parse(ctx, meta)
	case reportOnly != "":
		src = SourceReportOnly
		ctx.Add(analysis.Warning{
			Message:        "Only a Content-Security-Policy-Report-Only header was found. This policy does not enforce any security restrictions, it only reports violations.",
			Severity:       analysis.SeverityDangerous,
			Penalty:        consts.PenaltyCSPReportOnly,
			Source:         analysis.SourceHeader,
			Flags:          BitReportOnly,
			MachineMessage: "header_only_csp_report_only",
		})
		policy = Parse(ctx, reportOnly)
	default:
		ctx.Add(analysis.Warning{
			Message:        "Headers do not include a Content-Security-Policy.",
			Severity:       analysis.SeverityDangerous,
			Penalty:        consts.PenaltyMissingCSP,
			Source:         analysis.SourceHeader,
			Flags:          BitMissingCSP,
			MachineMessage: "csp_header_missing",
		})
		return ClassifiedResult{
			Policy:  &Policy{},
			Flags:   map[string]Flags{},
			Traits:  map[string]SourceInfo{},
			Missing: true,
		}
	}

	out := ClassifiedResult{
		Policy: policy,
		Flags:  DeriveFlags(policy),
		Source: src,
	}
	ctx.Logger().Debugw("csp selected", "source", src, "directives", policy.Names())

	EvaluateCoverage(ctx, policy, src)
	AnalyzeConfig(ctx, out.Flags)
	AnalyzeMisconfig(ctx, policy, out.Flags, src)

	if d := policy.ScriptDirective(); d != nil && res != nil && len(res.Targets) > 0 {
		report := MatchScripts(ctx, body, res, d, src)
		out.Match = &report
	}

	out.Traits = SourceTraits(policy)
	return out
}
