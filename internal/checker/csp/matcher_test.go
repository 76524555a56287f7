package csp

import (
	"crypto/sha256"
	"encoding/base64"
	"reflect"
	"strings"
	"testing"

	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
)

func extractPage(t *testing.T, ctx *analysis.Context, head, body string) ([]byte, *scripts.Result) {
	t.Helper()
	doc := []byte("<!DOCTYPE html><html><head>" + head + "</head><body>" + body + "</body></html>")
	rng, err := scripts.FindHTMLRange(ctx, doc, false)
	if err != nil {
		t.Fatalf("FindHTMLRange: %v", err)
	}
	res, err := scripts.Extract(ctx, doc, rng)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return doc, res
}

func match(t *testing.T, policy, body string) (MatchReport, *analysis.Context, *scripts.Result) {
	t.Helper()
	ctx := newCtx()
	doc, res := extractPage(t, ctx, "", body)
	d := Parse(ctx, policy).ScriptDirective()
	if d == nil {
		t.Fatalf("policy %q has no script directive", policy)
	}
	return MatchScripts(ctx, doc, res, d, SourceHeader), ctx, res
}

func hasWarning(ctx *analysis.Context, substr string) bool {
	for _, w := range ctx.Warnings() {
		if strings.Contains(w.Message, substr) {
			return true
		}
	}
	return false
}

// ===== Tests for MatchScripts =====

func TestMatchScripts_NoneAllowsNothing(t *testing.T) {
	body := `<script>run()</script>` +
		`<script src="https://cdn.a.com/x.js"></script>` +
		`<script src="/local.js"></script>` +
		`<script src="data:text/javascript,1"></script>` +
		`<script nonce="Zx81kQp0Lm3r">run()</script>`
	report, _, _ := match(t, "script-src 'none'", body)

	if len(report.Allowed) != 0 {
		t.Fatalf("'none' must not allow any script, allowed %v", report.Allowed)
	}
	if len(report.Blocked) != 5 {
		t.Errorf("expected all 5 scripts blocked, got %v", report.Blocked)
	}
}

func TestMatchScripts_WildcardShortCircuits(t *testing.T) {
	body := `<script>run()</script><script src="http://evil.com/x.js"></script><script src="/a.js"></script>`
	report, ctx, res := match(t, "script-src *", body)

	if !report.ShortCircuit {
		t.Fatal("expected short circuit")
	}
	if len(report.Allowed) != 3 {
		t.Errorf("all scripts should be allowed, got %v", report.Allowed)
	}
	w := ctx.Warnings()
	if len(w) != 1 || !strings.Contains(w[0].Message, "skipping CSP script-src and script src check") {
		t.Fatalf("expected only the short-circuit warning, got %v", w)
	}
	for i, tg := range res.Targets {
		if len(tg.Findings) != 0 {
			t.Errorf("script %d should carry no findings, got %v", i, tg.Findings)
		}
	}
}

func TestMatchScripts_WildcardSubdomain(t *testing.T) {
	body := `<script src="https://cdn.example.com/a.js"></script>` +
		`<script src="https://example.com/a.js"></script>` +
		`<script src="https://evilexample.com/a.js"></script>` +
		`<script src="https://deep.cdn.example.com/a.js"></script>`
	report, ctx, res := match(t, "script-src *.example.com", body)

	if !reflect.DeepEqual(report.Allowed, []int{0, 3}) {
		t.Fatalf("allowed = %v, want [0 3]", report.Allowed)
	}
	if !reflect.DeepEqual(report.Blocked, []int{1, 2}) {
		t.Fatalf("blocked = %v, want [1 2]", report.Blocked)
	}
	if !hasWarning(ctx, "Script not covered by CSP policy: https://evilexample.com/a.js") {
		t.Errorf("expected not-covered warning, got %v", ctx.Warnings())
	}
	if len(res.Targets[2].Findings) == 0 {
		t.Error("blocked script should carry a finding")
	}
	if !hasWarning(ctx, "Some script in the html are not allowed by the CSP: 2") {
		t.Errorf("expected summary warning, got %v", ctx.Warnings())
	}
}

func TestMatchScripts_NonceFlip(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		nonce   string
		allowed bool
	}{
		{name: "matching", policy: "script-src 'nonce-abc'", nonce: "abc", allowed: true},
		{name: "csp changed", policy: "script-src 'nonce-abd'", nonce: "abc"},
		{name: "script changed", policy: "script-src 'nonce-abc'", nonce: "abd"},
		{name: "case variant nonce", policy: "script-src 'nonce-abcDEF123xyz' 'nonce-ABCdef123XYZ'", nonce: "ABCdef123XYZ", allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, _, _ := match(t, tt.policy, `<script nonce="`+tt.nonce+`">run()</script>`)
			if report.IsAllowed(0) != tt.allowed {
				t.Fatalf("allowed = %v, want %v (report %+v)", report.IsAllowed(0), tt.allowed, report)
			}
		})
	}
}

func TestMatchScripts_AllNonced(t *testing.T) {
	body := `<script nonce="k8Jd2Lq9Xz4Pw7Vb">a()</script><script src="https://cdn.a.com/x.js" nonce="k8Jd2Lq9Xz4Pw7Vb"></script>`
	report, ctx, _ := match(t, "script-src 'nonce-k8Jd2Lq9Xz4Pw7Vb'", body)

	if !report.IsAllowed(0) {
		t.Fatal("nonced inline script should be allowed")
	}
	if report.IsAllowed(1) {
		t.Fatal("nonce is only read for inline and data: scripts")
	}
	if hasWarning(ctx, "All script whitelisted by nonce in CSP") {
		t.Error("an external script without nonce remains, so not everything is nonced")
	}
}

func TestMatchScripts_AllNoncedGood(t *testing.T) {
	report, ctx, _ := match(t, "script-src 'nonce-k8Jd2Lq9Xz4Pw7Vb'", `<script nonce="k8Jd2Lq9Xz4Pw7Vb">a()</script>`)
	if !report.IsAllowed(0) {
		t.Fatal("expected script allowed")
	}
	w := ctx.Warnings()
	if len(w) != 1 || w[0].Severity != analysis.SeverityGood {
		t.Fatalf("expected a single good warning, got %v", w)
	}
}

func TestMatchScripts_WeakNonce(t *testing.T) {
	_, ctx, _ := match(t, "script-src 'nonce-aaaa'", `<script nonce="aaaa">a()</script>`)
	var weak *analysis.Warning
	for _, w := range ctx.Warnings() {
		if w.MachineMessage == "nonce_entropy_low" {
			w := w
			weak = &w
		}
	}
	if weak == nil || weak.Severity != analysis.SeveritySuspicious {
		t.Fatalf("expected low entropy warning, got %v", ctx.Warnings())
	}
}

func TestMatchScripts_StrictDynamic(t *testing.T) {
	body := `<script nonce="k8Jd2Lq9Xz4Pw7Vb">a()</script><script src="https://cdn.a.com/x.js"></script><script>b()</script>`
	report, ctx, res := match(t, "script-src 'nonce-k8Jd2Lq9Xz4Pw7Vb' 'strict-dynamic' https://cdn.a.com", body)

	if !reflect.DeepEqual(report.Unprotected, []int{1, 2}) {
		t.Fatalf("unprotected = %v, want [1 2]", report.Unprotected)
	}
	if !reflect.DeepEqual(report.Allowed, []int{0}) {
		t.Fatalf("allowed = %v, want [0]", report.Allowed)
	}
	if res.Targets[1].Findings[0].Message != "Strict-Dynamic CSP but non-protected script" {
		t.Errorf("unexpected finding %v", res.Targets[1].Findings)
	}
	if hasWarning(ctx, "not covered by CSP policy") {
		t.Error("strict-dynamic must stop before allow-list matching")
	}
}

func TestMatchScripts_SelfAndRelative(t *testing.T) {
	body := `<script src="/app.js"></script><script src="https://a.com/b.js"></script>`

	report, ctx, _ := match(t, "script-src 'self'", body)
	if !reflect.DeepEqual(report.Allowed, []int{0, 1}) {
		t.Fatalf("'self' should allow relative and same-host scripts, got %+v", report)
	}
	if hasWarning(ctx, "unused") {
		t.Errorf("'self' was used, got %v", ctx.Warnings())
	}

	report, ctx, _ = match(t, "script-src https://a.com", body)
	if !hasWarning(ctx, "self missing from CSP but relative script are present") {
		t.Errorf("expected missing self warning, got %v", ctx.Warnings())
	}
	if !reflect.DeepEqual(report.Blocked, []int{0}) || !report.IsAllowed(1) {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestMatchScripts_SelfOnHTTPPage(t *testing.T) {
	ctx := analysis.NewContext("http://a.com/login", nil)
	doc, res := extractPage(t, ctx, "", `<script src="https://a.com/x.js"></script><script src="http://a.com/y.js"></script>`)
	report := MatchScripts(ctx, doc, res, Parse(ctx, "script-src 'self'").ScriptDirective(), SourceHeader)
	if !reflect.DeepEqual(report.Allowed, []int{0, 1}) {
		t.Fatalf("'self' on an http page should allow both schemes, got %+v", report)
	}
}

func TestMatchScripts_InlineRules(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		allowed bool
	}{
		{name: "unsafe-inline", policy: "script-src 'self' 'unsafe-inline'", allowed: true},
		{name: "no unsafe-inline", policy: "script-src 'self'"},
		{name: "unsafe-inline ignored with nonce", policy: "script-src 'unsafe-inline' 'nonce-k8Jd2Lq9Xz4Pw7Vb'"},
		{name: "hash match", policy: "script-src '" + inlineHash("run()") + "'", allowed: true},
		{name: "hash mismatch", policy: "script-src '" + inlineHash("other()") + "'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, _, _ := match(t, tt.policy, `<script>run()</script>`)
			if report.IsAllowed(0) != tt.allowed {
				t.Fatalf("allowed = %v, want %v (%+v)", report.IsAllowed(0), tt.allowed, report)
			}
		})
	}
}

func inlineHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
}

func TestMatchScripts_SourceExpressions(t *testing.T) {
	tests := []struct {
		name    string
		policy  string
		src     string
		allowed bool
	}{
		{name: "exact host", policy: "script-src cdn.b.com", src: "https://cdn.b.com/x.js", allowed: true},
		{name: "host case", policy: "script-src https://CDN.b.com", src: "https://cdn.B.com/x.js", allowed: true},
		{name: "path prefix", policy: "script-src https://cdn.b.com/js/", src: "https://cdn.b.com/js/app.js?v=2", allowed: true},
		{name: "path prefix miss", policy: "script-src https://cdn.b.com/js/", src: "https://cdn.b.com/other.js"},
		{name: "exact path", policy: "script-src https://cdn.b.com/js/app.js", src: "https://cdn.b.com/js/app.js", allowed: true},
		{name: "exact path miss", policy: "script-src https://cdn.b.com/js/app.js", src: "https://cdn.b.com/js/evil.js"},
		{name: "scheme mismatch", policy: "script-src https://cdn.b.com", src: "http://cdn.b.com/x.js"},
		{name: "http source upgrades", policy: "script-src http://cdn.b.com", src: "https://cdn.b.com/x.js", allowed: true},
		{name: "scheme only", policy: "script-src https:", src: "https://any.c.com/x.js", allowed: true},
		{name: "scheme only miss", policy: "script-src https:", src: "http://any.c.com/x.js"},
		{name: "protocol relative", policy: "script-src https://cdn.b.com", src: "//cdn.b.com/x.js", allowed: true},
		{name: "port mismatch", policy: "script-src https://cdn.b.com:8443", src: "https://cdn.b.com/x.js"},
		{name: "other host", policy: "script-src https://cdn.b.com", src: "https://cdn.b.com.evil.net/x.js"},
		{name: "implicit port", policy: "script-src https://cdn.b.com", src: "https://cdn.b.com:8443/x.js"},
		{name: "explicit default port", policy: "script-src https://cdn.b.com", src: "https://cdn.b.com:443/x.js", allowed: true},
		{name: "host only implicit port", policy: "script-src cdn.b.com", src: "https://cdn.b.com:8443/x.js"},
		{name: "wildcard port", policy: "script-src https://cdn.b.com:*", src: "https://cdn.b.com:8443/x.js", allowed: true},
		{name: "self on https page", policy: "script-src 'self'", src: "http://a.com/x.js"},
		{name: "self other port", policy: "script-src 'self'", src: "https://a.com:8443/x.js"},
		{name: "self same origin", policy: "script-src 'self'", src: "https://A.com/x.js", allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, _, _ := match(t, tt.policy, `<script src="`+tt.src+`"></script>`)
			if report.IsAllowed(0) != tt.allowed {
				t.Fatalf("allowed = %v, want %v", report.IsAllowed(0), tt.allowed)
			}
		})
	}
}

func TestMatchScripts_InsecureSourceKept(t *testing.T) {
	report, ctx, _ := match(t, "script-src http://cdn.b.com", `<script src="http://cdn.b.com/x.js"></script>`)
	if !report.IsAllowed(0) {
		t.Fatal("insecure sources stay in the allow-set")
	}
	if !hasWarning(ctx, "CSP source uses insecure scheme: http://cdn.b.com") {
		t.Errorf("expected insecure CSP source warning, got %v", ctx.Warnings())
	}
	if !hasWarning(ctx, "Script source uses insecure scheme: http://cdn.b.com/x.js") {
		t.Errorf("expected insecure script source warning, got %v", ctx.Warnings())
	}
}

func TestMatchScripts_UnusedSources(t *testing.T) {
	report, ctx, _ := match(t, "script-src https://cdn.b.com https://unused.c.com", `<script src="https://cdn.b.com/x.js"></script>`)
	if !reflect.DeepEqual(report.UnusedSources, []string{"unused.c.com"}) {
		t.Fatalf("unused = %v", report.UnusedSources)
	}
	if !hasWarning(ctx, "CSP defines unused script sources: unused.c.com") {
		t.Errorf("expected unused warning, got %v", ctx.Warnings())
	}

	_, ctx, _ = match(t, "script-src https://a1.c.com https://a2.c.com https://a3.c.com https://a4.c.com", `<script src="https://cdn.b.com/x.js"></script>`)
	if !hasWarning(ctx, "CSP defines 4 script sources that were never used") {
		t.Errorf("expected counted unused warning, got %v", ctx.Warnings())
	}
}

func TestMatchScripts_DataScheme(t *testing.T) {
	body := `<script src="data:text/javascript,a()"></script>`
	report, _, _ := match(t, "script-src data:", body)
	if !report.IsAllowed(0) {
		t.Fatal("data: should allow data URI scripts")
	}
	report, _, _ = match(t, "script-src 'self'", body)
	if report.IsAllowed(0) {
		t.Fatal("data URI scripts need data: in the policy")
	}
}

func TestMatchScripts_ReportOnlyCarriesNoPenalty(t *testing.T) {
	ctx := newCtx()
	doc, res := extractPage(t, ctx, "", `<script src="/a.js"></script>`)
	d := Parse(ctx, "script-src https://cdn.b.com").ScriptDirective()
	MatchScripts(ctx, doc, res, d, SourceReportOnly)
	for _, w := range ctx.Warnings() {
		if w.Penalty != 0 {
			t.Errorf("report-only warnings must not penalize, got %+v", w)
		}
	}
}

func TestMatchScripts_NilInputs(t *testing.T) {
	ctx := newCtx()
	d := Parse(ctx, "script-src 'self'").ScriptDirective()
	if r := MatchScripts(ctx, nil, nil, d, SourceHeader); len(r.Allowed)+len(r.Blocked) != 0 {
		t.Fatalf("nil result should yield an empty report, got %+v", r)
	}
	if ctx.Len() != 0 {
		t.Fatalf("no warnings expected, got %v", ctx.Warnings())
	}
}
