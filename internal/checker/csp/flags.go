package csp

import (
	"fmt"
	"net/url"
	"strings"
)

// Flags is the semantic bit-set of one directive.
type Flags uint16

const (
	FlagUnsafeInline Flags = 1 << iota
	FlagUnsafeEval
	FlagWasmUnsafeEval
	FlagStrictDynamic
	FlagReportSample
	FlagWildcard
	FlagNone
	FlagHasNonce
	FlagAllowsHTTP
	FlagAllowsHTTPS
	FlagAllowsBlob
	FlagAllowsData
	FlagAllowsSelf
	FlagHasHash
	FlagSpecificURL
	FlagWildcardURL
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagUnsafeInline, "unsafe-inline"},
	{FlagUnsafeEval, "unsafe-eval"},
	{FlagWasmUnsafeEval, "wasm-unsafe-eval"},
	{FlagStrictDynamic, "strict-dynamic"},
	{FlagReportSample, "report-sample"},
	{FlagWildcard, "wildcard"},
	{FlagNone, "none"},
	{FlagHasNonce, "has-nonce"},
	{FlagAllowsHTTP, "allows-http"},
	{FlagAllowsHTTPS, "allows-https"},
	{FlagAllowsBlob, "allows-blob"},
	{FlagAllowsData, "allows-data"},
	{FlagAllowsSelf, "allows-self"},
	{FlagHasHash, "has-hash"},
	{FlagSpecificURL, "specific-url"},
	{FlagWildcardURL, "wildcard-url"},
}

// Has reports whether every bit of other is set.
func (f Flags) Has(other Flags) bool { return f&other == other }

// Any reports whether at least one bit of other is set.
func (f Flags) Any(other Flags) bool { return f&other != 0 }

// Set returns f with the bits of other added.
func (f Flags) Set(other Flags) Flags { return f | other }

// Names lists the set flags in bit order.
func (f Flags) Names() []string {
	var out []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			out = append(out, fn.name)
		}
	}
	return out
}

func (f Flags) String() string {
	return strings.Join(f.Names(), "|")
}

// MarshalText renders the flags as their names.
func (f Flags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText reads the "|"-joined names written by MarshalText.
func (f *Flags) UnmarshalText(text []byte) error {
	var out Flags
	for _, name := range strings.Split(string(text), "|") {
		if name == "" {
			continue
		}
		found := false
		for _, fn := range flagNames {
			if fn.name == name {
				out |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown csp flag %q", name)
		}
	}
	*f = out
	return nil
}

// DeriveFlags computes the flag set of every directive in p.
func DeriveFlags(p *Policy) map[string]Flags {
	out := make(map[string]Flags)
	if p == nil {
		return out
	}
	for _, d := range p.Directives {
		out[d.Name] = directiveFlags(&d)
	}
	return out
}

func directiveFlags(d *Directive) Flags {
	var f Flags
	for _, v := range d.Values {
		lower := strings.ToLower(v.Raw)
		switch v.Type {
		case ValueNonce:
			f = f.Set(FlagHasNonce)
		case ValueHash:
			f = f.Set(FlagHasHash)
		case ValueKeyword:
			f = f.Set(keywordFlag(lower))
		case ValueWildcard:
			f = f.Set(FlagWildcard)
		case ValueSource:
			f = f.Set(sourceFlags(lower))
		}
	}
	return f
}

func keywordFlag(lower string) Flags {
	switch lower {
	case KeywordUnsafeInline:
		return FlagUnsafeInline
	case KeywordUnsafeEval:
		return FlagUnsafeEval
	case KeywordWasmUnsafeEval:
		return FlagWasmUnsafeEval
	case KeywordStrictDynamic:
		return FlagStrictDynamic
	case KeywordReportSample:
		return FlagReportSample
	case KeywordNone:
		return FlagNone
	case KeywordSelf:
		return FlagAllowsSelf
	}
	return 0
}

func sourceFlags(lower string) Flags {
	switch {
	case strings.HasPrefix(lower, SchemeData):
		return FlagAllowsData
	case strings.HasPrefix(lower, SchemeBlob):
		return FlagAllowsBlob
	case lower == SchemeHTTP:
		return FlagAllowsHTTP
	case lower == SchemeHTTPS:
		return FlagAllowsHTTPS
	case strings.HasPrefix(lower, "*."):
		if validHost(lower[2:]) {
			return FlagWildcardURL
		}
		return 0
	}

	var f Flags
	switch {
	case strings.HasPrefix(lower, "http://"):
		f = FlagAllowsHTTP
	case strings.HasPrefix(lower, "https://"):
		f = FlagAllowsHTTPS
	}
	host := lower
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if strings.HasPrefix(host, "*.") {
		if validHost(host[2:]) {
			return f.Set(FlagWildcardURL)
		}
		return f
	}
	if validHost(host) {
		f = f.Set(FlagSpecificURL)
	}
	return f
}

func validHost(hostAndPath string) bool {
	u, err := url.Parse("https://" + hostAndPath)
	return err == nil && u.Hostname() != ""
}
