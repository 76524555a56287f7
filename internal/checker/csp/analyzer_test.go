package csp

import (
	"strings"
	"testing"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// ===== Tests for AnalyzeMisconfig =====

func TestAnalyzeMisconfig(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		contains string
		severity analysis.Severity
		penalty  int
	}{
		{name: "inline strict-dynamic nonce", policy: "script-src 'unsafe-inline' 'strict-dynamic' 'nonce-x'", contains: "contained but still risky", severity: analysis.SeveritySuspicious, penalty: consts.PenaltyUnsafeInlineNonce},
		{name: "inline nonce", policy: "script-src 'unsafe-inline' 'nonce-x'", contains: "partially contained", severity: analysis.SeveritySuspicious, penalty: consts.PenaltyUnsafeInlineNonce},
		{name: "inline hash", policy: "script-src 'unsafe-inline' 'sha256-x'", contains: "partially hardened", severity: analysis.SeveritySuspicious, penalty: consts.PenaltyUnsafeInlineHash},
		{name: "inline free", policy: "script-src 'unsafe-inline'", contains: "freely allowed", severity: analysis.SeverityDangerous, penalty: consts.PenaltyUnsafeInline},
		{name: "eval contained", policy: "script-src 'unsafe-eval' 'sha256-x'", contains: "'unsafe-eval' present with nonce or hash", severity: analysis.SeveritySuspicious, penalty: consts.PenaltyUnsafeEvalContained},
		{name: "eval", policy: "script-src 'unsafe-eval'", contains: "dangerous execution allowed", severity: analysis.SeverityDangerous, penalty: consts.PenaltyUnsafeEval},
		{name: "wildcard contained", policy: "script-src * 'strict-dynamic' 'nonce-x'", contains: "partially contained but still risky", severity: analysis.SeveritySuspicious, penalty: consts.PenaltyWildcardStrictDyn},
		{name: "wildcard", policy: "script-src *", contains: "allows scripts from any origin", severity: analysis.SeverityDangerous, penalty: consts.PenaltyWildcard},
		{name: "none conflict", policy: "script-src 'none' 'self'", contains: "CSP conflict", severity: analysis.SeveritySuspicious, penalty: consts.PenaltyNoneConflict},
		{name: "default-src fallback", policy: "default-src 'unsafe-inline'", contains: "in default-src: freely allowed", severity: analysis.SeverityDangerous, penalty: consts.PenaltyUnsafeInline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newCtx()
			p := Parse(ctx, tt.policy)
			AnalyzeMisconfig(ctx, p, DeriveFlags(p), SourceHeader)

			w := ctx.Warnings()
			if len(w) != 1 {
				t.Fatalf("expected one warning, got %v", w)
			}
			if !strings.Contains(w[0].Message, tt.contains) {
				t.Errorf("message %q does not contain %q", w[0].Message, tt.contains)
			}
			if w[0].Severity != tt.severity || w[0].Penalty != tt.penalty {
				t.Errorf("got %s/%d, want %s/%d", w[0].Severity, w[0].Penalty, tt.severity, tt.penalty)
			}
		})
	}
}

func TestAnalyzeMisconfig_NonceContainmentPenalty(t *testing.T) {
	penalty := func(policy string) int {
		ctx := newCtx()
		p := Parse(ctx, policy)
		AnalyzeMisconfig(ctx, p, DeriveFlags(p), SourceHeader)
		return ctx.Warnings()[0].Penalty
	}
	nonce := penalty("script-src 'unsafe-inline' 'nonce-x'")
	strict := penalty("script-src 'unsafe-inline' 'strict-dynamic' 'nonce-x'")
	if nonce != strict || nonce != -5 {
		t.Fatalf("nonce containment penalties differ: nonce %d, strict-dynamic %d", nonce, strict)
	}
}

func TestAnalyzeMisconfig_ScriptSrcWins(t *testing.T) {
	ctx := newCtx()
	p := Parse(ctx, "default-src 'unsafe-inline'; script-src 'self'")
	AnalyzeMisconfig(ctx, p, DeriveFlags(p), SourceHeader)
	if ctx.Len() != 0 {
		t.Fatalf("default-src is only a fallback, got %v", ctx.Warnings())
	}
}

// ===== Tests for EvaluateCoverage and AnalyzeConfig =====

func TestEvaluateCoverage(t *testing.T) {
	tests := []struct {
		policy  string
		penalty int
		found   bool
	}{
		{policy: "img-src 'self'", penalty: consts.PenaltyFakeCSP, found: true},
		{policy: "script-src 'self'", penalty: consts.PenaltyFakeCSP, found: true},
		{policy: "script-src 'self'; object-src 'none'"},
		{policy: "default-src 'self'"},
		{policy: "require-trusted-types-for 'script'", penalty: consts.PenaltyTrustedTypes, found: true},
		{policy: "require-trusted-types-for 'other'", penalty: consts.PenaltyTrustedTypesMisconfig, found: true},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			ctx := newCtx()
			EvaluateCoverage(ctx, Parse(ctx, tt.policy), SourceHeader)
			w := ctx.Warnings()
			if !tt.found {
				if len(w) != 0 {
					t.Fatalf("expected no warning, got %v", w)
				}
				return
			}
			if len(w) != 1 || w[0].Penalty != tt.penalty {
				t.Fatalf("expected one warning with penalty %d, got %v", tt.penalty, w)
			}
		})
	}
}

func TestAnalyzeConfig(t *testing.T) {
	ctx := newCtx()
	p := Parse(ctx, "default-src * https:; script-src 'self' *")
	AnalyzeConfig(ctx, DeriveFlags(p))

	w := ctx.Warnings()
	if len(w) != 2 {
		t.Fatalf("expected two warnings, got %v", w)
	}
	if w[0].Message != "Directive 'default-src' allows both wildcard and HTTP sources." {
		t.Errorf("unexpected first warning %q", w[0].Message)
	}
	if w[1].Message != "Directive 'script-src' includes both 'self' and wildcard (*)." {
		t.Errorf("unexpected second warning %q", w[1].Message)
	}
	if w[0].Penalty != 0 || w[1].Penalty != 0 {
		t.Error("config warnings are informational")
	}
}

// ===== Tests for Analyze =====

func TestAnalyze_FreelyAllowedScenario(t *testing.T) {
	ctx := newCtx()
	doc, res := extractPage(t, ctx, "", "<script>run()</script>")
	headers := map[string]string{
		HeaderCSP: "default-src 'self'; script-src 'self' 'unsafe-inline'",
	}

	out := Analyze(ctx, headers, "", doc, res)
	if out.Missing || out.Source != SourceHeader {
		t.Fatalf("unexpected result %+v", out)
	}

	var freely bool
	for _, w := range ctx.Warnings() {
		if strings.Contains(w.Message, "freely allowed") && w.Severity == analysis.SeverityDangerous {
			freely = true
		}
		if strings.Contains(strings.ToLower(w.Message), "nonce") {
			t.Errorf("unexpected nonce warning %q", w.Message)
		}
	}
	if !freely {
		t.Fatalf("expected freely allowed warning, got %v", ctx.Warnings())
	}
	if out.Match == nil || !out.Match.IsAllowed(0) {
		t.Errorf("inline script should run under 'unsafe-inline', got %+v", out.Match)
	}
	if !out.Flags["script-src"].Has(FlagUnsafeInline | FlagAllowsSelf) {
		t.Errorf("unexpected flags %s", out.Flags["script-src"])
	}
	if !out.Traits["default-src"].OnlySelf {
		t.Error("expected traits for default-src")
	}
}

func TestAnalyze_Missing(t *testing.T) {
	ctx := newCtx()
	out := Analyze(ctx, map[string]string{}, "", nil, nil)
	if !out.Missing || !out.Policy.Empty() {
		t.Fatalf("expected missing policy, got %+v", out)
	}
	w := ctx.Warnings()
	if len(w) != 1 || w[0].Message != "Headers do not include a Content-Security-Policy." || w[0].Severity != analysis.SeverityDangerous {
		t.Fatalf("unexpected warnings %v", w)
	}
	if w[0].MachineMessage != "csp_header_missing" {
		t.Errorf("machine message = %q", w[0].MachineMessage)
	}
}

func TestAnalyze_ReportOnly(t *testing.T) {
	ctx := newCtx()
	out := Analyze(ctx, map[string]string{HeaderCSPReportOnly: "script-src 'unsafe-inline'"}, "", nil, nil)
	if out.Source != SourceReportOnly {
		t.Fatalf("source = %q", out.Source)
	}
	w := ctx.Warnings()
	if w[0].MachineMessage != "header_only_csp_report_only" || w[0].Penalty != consts.PenaltyCSPReportOnly {
		t.Fatalf("unexpected first warning %+v", w[0])
	}
	for _, x := range w[1:] {
		if x.Penalty != 0 {
			t.Errorf("non-enforcing policy warning carries a penalty: %+v", x)
		}
	}
}

func TestAnalyze_MetaOnlyAndMerge(t *testing.T) {
	ctx := newCtx()
	out := Analyze(ctx, map[string]string{}, "default-src 'self'", nil, nil)
	if out.Source != SourceMeta || out.Missing {
		t.Fatalf("unexpected result %+v", out)
	}

	ctx = newCtx()
	out = Analyze(ctx, map[string]string{HeaderCSP: "default-src 'self'"}, "script-src 'self'; object-src 'none'", nil, nil)
	if !out.Policy.Has("object-src") || !out.Policy.Has("script-src") {
		t.Fatalf("meta directives should be added, got %q", out.Policy.String())
	}
	if !hasWarning(ctx, "CSP directives added from <meta http-equiv>: script-src, object-src") {
		t.Errorf("expected added warning, got %v", ctx.Warnings())
	}
}

func TestAnalyze_MetaEnforcesNextToReportOnly(t *testing.T) {
	ctx := newCtx()
	headers := map[string]string{HeaderCSPReportOnly: "default-src 'self'"}
	out := Analyze(ctx, headers, "script-src 'self' 'unsafe-inline'; object-src 'none'", nil, nil)

	if out.Source != SourceMeta || out.Missing {
		t.Fatalf("meta policy should be enforcing, got %+v", out)
	}
	if !out.Policy.Has("script-src") || !out.Policy.Has("object-src") {
		t.Fatalf("meta directives dropped, got %q", out.Policy.String())
	}
	if !hasWarning(ctx, "header only reports violations") {
		t.Errorf("expected report-only note, got %v", ctx.Warnings())
	}
	penalized := false
	for _, w := range ctx.Warnings() {
		if w.MachineMessage == "header_only_csp_report_only" {
			t.Errorf("report-only penalty applied while meta enforces: %+v", w)
		}
		if w.Penalty < 0 {
			penalized = true
		}
	}
	if !penalized {
		t.Error("enforcing meta policy with 'unsafe-inline' should carry a penalty")
	}
}

func TestAnalyze_NilScriptsSkipsMatcher(t *testing.T) {
	ctx := newCtx()
	out := Analyze(ctx, map[string]string{HeaderCSP: "default-src 'self'"}, "", nil, nil)
	if out.Match != nil {
		t.Fatalf("matcher must not run without scripts, got %+v", out.Match)
	}
}

// ===== Tests for Recommend =====

func TestRecommend(t *testing.T) {
	ctx := newCtx()
	doc, res := extractPage(t, ctx, `<script src="https://cdn.b.com/x.js"></script><script src="https://a.com/own.js"></script>`,
		`<script>run()</script><script>run()</script><script src="/local.js"></script>`)

	got := Recommend(doc, res, "https://a.com/login")
	want := "default-src 'self'; script-src 'self' https://cdn.b.com '" + inlineHash("run()") + "'; object-src 'none'; base-uri 'self'"
	if got != want {
		t.Fatalf("Recommend() =\n%s\nwant\n%s", got, want)
	}

	if got := Recommend(nil, nil, "https://a.com"); got != "default-src 'self'; script-src 'self'; object-src 'none'; base-uri 'self'" {
		t.Errorf("empty recommendation = %q", got)
	}
}
