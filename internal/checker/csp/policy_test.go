package csp

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
)

func newCtx() *analysis.Context {
	return analysis.NewContext("https://a.com/login", nil)
}

// ===== Tests for Parse =====

func TestParse_Deterministic(t *testing.T) {
	raw := "default-src 'self'; script-src 'self' 'nonce-r4nd0m' https://cdn.a.com *.b.com 'strict-dynamic'; object-src 'none'"

	first := Parse(newCtx(), raw)
	second := Parse(newCtx(), raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("parsing the same header twice differs:\n%+v\n%+v", first, second)
	}
	if first.String() != second.String() {
		t.Fatalf("rendered policies differ: %q vs %q", first.String(), second.String())
	}
	if got := first.Names(); !reflect.DeepEqual(got, []string{"default-src", "script-src", "object-src"}) {
		t.Errorf("unexpected directive order %v", got)
	}
}

func TestParse_ValueTypes(t *testing.T) {
	p := Parse(newCtx(), "script-src 'self' 'NONCE-abc' 'sha384-xyz' * https://cdn.a.com data: 'unsafe-inline'")
	d := p.Get("script-src")
	if d == nil {
		t.Fatal("script-src not parsed")
	}
	want := []ValueType{ValueKeyword, ValueNonce, ValueHash, ValueWildcard, ValueSource, ValueSource, ValueKeyword}
	if len(d.Values) != len(want) {
		t.Fatalf("expected %d values, got %+v", len(want), d.Values)
	}
	for i, v := range d.Values {
		if v.Type != want[i] {
			t.Errorf("value %q: type %s, want %s", v.Raw, v.Type, want[i])
		}
	}
}

func TestParse_Tolerance(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		names    []string
		warnings int
	}{
		{name: "no trailing semicolon", raw: "script-src 'self'", names: []string{"script-src"}},
		{name: "extra separators", raw: " ;; script-src  'self' ;\tobject-src 'none';;", names: []string{"script-src", "object-src"}},
		{name: "upper case name", raw: "SCRIPT-SRC 'self'", names: []string{"script-src"}},
		{name: "duplicate first wins", raw: "script-src 'self'; script-src *", names: []string{"script-src"}, warnings: 1},
		{name: "invalid name", raw: "scr!pt-src 'self'; img-src *", names: []string{"img-src"}, warnings: 1},
		{name: "empty", raw: "", names: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newCtx()
			p := Parse(ctx, tt.raw)
			if got := p.Names(); !reflect.DeepEqual(got, tt.names) {
				t.Errorf("names = %v, want %v", got, tt.names)
			}
			if ctx.Len() != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, ctx.Warnings())
			}
		})
	}
}

func TestParse_DuplicateKeepsFirst(t *testing.T) {
	ctx := newCtx()
	p := Parse(ctx, "script-src 'self'; script-src *")
	if p.Get("script-src").Has("*") {
		t.Fatal("later duplicate must be ignored")
	}
	w := ctx.Warnings()
	if w[0].Message != "Duplicate CSP directive 'script-src' detected." || w[0].Severity != analysis.SeveritySuspicious {
		t.Errorf("unexpected warning %+v", w[0])
	}
}

func TestParse_DuplicateValuesCollapse(t *testing.T) {
	p := Parse(newCtx(), "script-src 'self' 'SELF' https://a.com https://a.com")
	if n := len(p.Get("script-src").Values); n != 2 {
		t.Fatalf("expected 2 unique values, got %d", n)
	}
}

func TestParse_CaseSensitiveValuesKept(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		want   int
	}{
		{name: "nonces", policy: "script-src 'nonce-abcDEF123xyz' 'nonce-ABCdef123XYZ'", want: 2},
		{name: "hashes", policy: "script-src 'sha256-abcDEF=' 'sha256-ABCdef='", want: 2},
		{name: "source paths", policy: "script-src https://a.com/JS/ https://a.com/js/", want: 2},
		{name: "source host case", policy: "script-src https://A.com/js/ HTTPS://a.COM/js/", want: 1},
		{name: "identical nonces", policy: "script-src 'nonce-abcDEF123xyz' 'nonce-abcDEF123xyz'", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(newCtx(), tt.policy)
			if n := len(p.Get("script-src").Values); n != tt.want {
				t.Fatalf("expected %d values, got %d (%q)", tt.want, n, p.String())
			}
		})
	}
}

// ===== Tests for Merge =====

func TestMerge(t *testing.T) {
	header := Parse(newCtx(), "script-src 'self' https://a.com")

	t.Run("adds missing directive", func(t *testing.T) {
		ctx := newCtx()
		merged := Merge(ctx, header, Parse(newCtx(), "img-src *"))
		if !merged.Has("img-src") {
			t.Fatal("img-src should be added from meta")
		}
		w := ctx.Warnings()
		if len(w) != 1 || w[0].Message != "CSP directives added from <meta http-equiv>: img-src" {
			t.Fatalf("unexpected warnings %v", w)
		}
	})

	t.Run("merges less permissive directive", func(t *testing.T) {
		ctx := newCtx()
		merged := Merge(ctx, header, Parse(newCtx(), "script-src https://b.com"))
		if !merged.Get("script-src").Has("https://b.com") {
			t.Fatal("meta value should be merged")
		}
		if header.Get("script-src").Has("https://b.com") {
			t.Fatal("header policy must not be modified")
		}
		if w := ctx.Warnings(); len(w) != 1 || !strings.HasPrefix(w[0].Message, "CSP directives merged with <meta http-equiv>") {
			t.Fatalf("unexpected warnings %v", w)
		}
	})

	t.Run("skips more permissive directive", func(t *testing.T) {
		ctx := newCtx()
		merged := Merge(ctx, header, Parse(newCtx(), "script-src * https://x.com https://y.com"))
		if merged.Get("script-src").Has("*") {
			t.Fatal("more permissive meta directive must be ignored")
		}
		if w := ctx.Warnings(); len(w) != 1 || !strings.Contains(w[0].Message, "more permissive") {
			t.Fatalf("unexpected warnings %v", w)
		}
	})

	t.Run("nil meta", func(t *testing.T) {
		ctx := newCtx()
		merged := Merge(ctx, header, nil)
		if merged.String() != header.String() || ctx.Len() != 0 {
			t.Fatalf("nil meta should copy the header, got %q", merged.String())
		}
	})
}

// ===== Tests for DeriveFlags =====

func TestDeriveFlags(t *testing.T) {
	tests := []struct {
		raw  string
		want Flags
	}{
		{raw: "script-src 'self'", want: FlagAllowsSelf},
		{raw: "script-src 'unsafe-inline' 'unsafe-eval' 'wasm-unsafe-eval'", want: FlagUnsafeInline | FlagUnsafeEval | FlagWasmUnsafeEval},
		{raw: "script-src 'nonce-abc' 'strict-dynamic' 'report-sample'", want: FlagHasNonce | FlagStrictDynamic | FlagReportSample},
		{raw: "script-src 'sha256-abc'", want: FlagHasHash},
		{raw: "script-src 'none'", want: FlagNone},
		{raw: "script-src *", want: FlagWildcard},
		{raw: "script-src http: https: data: blob:", want: FlagAllowsHTTP | FlagAllowsHTTPS | FlagAllowsData | FlagAllowsBlob},
		{raw: "script-src https://cdn.a.com", want: FlagAllowsHTTPS | FlagSpecificURL},
		{raw: "script-src http://cdn.a.com", want: FlagAllowsHTTP | FlagSpecificURL},
		{raw: "script-src cdn.a.com", want: FlagSpecificURL},
		{raw: "script-src *.a.com", want: FlagWildcardURL},
		{raw: "script-src https://*.a.com", want: FlagAllowsHTTPS | FlagWildcardURL},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := DeriveFlags(Parse(newCtx(), tt.raw))["script-src"]
			if got != tt.want {
				t.Fatalf("flags = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFlags_BitOrder(t *testing.T) {
	if FlagUnsafeInline != 1 || FlagWildcardURL != 1<<15 {
		t.Fatalf("bit order changed: unsafe-inline=%d wildcard-url=%d", FlagUnsafeInline, FlagWildcardURL)
	}
	f := FlagUnsafeInline.Set(FlagHasHash)
	if !f.Has(FlagHasHash) || f.Has(FlagNone) || !f.Any(FlagNone|FlagUnsafeInline) {
		t.Fatal("Has/Any helpers broken")
	}
	if got := f.Names(); !reflect.DeepEqual(got, []string{"unsafe-inline", "has-hash"}) {
		t.Errorf("Names() = %v", got)
	}
}

// ===== Tests for SourceTraits =====

func TestSourceTraits(t *testing.T) {
	p := Parse(newCtx(), "default-src 'self'; script-src http://localhost:3000 http://evil.com *.cdn.com 'self'; img-src 'self' 'none'")
	traits := SourceTraits(p)

	if !traits["default-src"].OnlySelf {
		t.Error("default-src should be only self")
	}
	s := traits["script-src"]
	if s.URLCount != 3 || !s.HasHTTP || !s.HasHTTPButLocalhost || !s.HasWildcard || s.OnlySelf {
		t.Errorf("unexpected script-src traits %+v", s)
	}
	if traits["img-src"].OnlySelf {
		t.Error("img-src has two keywords and is not only self")
	}
}

// ===== Tests for shannonEntropy =====

func TestShannonEntropy(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"aaaa", 0},
		{"abab", 1},
		{"abcd", 2},
	}
	for _, tt := range tests {
		if got := shannonEntropy(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("shannonEntropy(%q) = %f, want %f", tt.in, got, tt.want)
		}
	}
}
