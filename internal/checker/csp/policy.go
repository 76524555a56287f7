package csp

import (
	"fmt"
	"strings"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// ValueType classifies one source expression of a directive.
type ValueType int

const (
	ValueSource ValueType = iota
	ValueKeyword
	ValueNonce
	ValueHash
	ValueWildcard
)

func (v ValueType) String() string {
	switch v {
	case ValueKeyword:
		return "keyword"
	case ValueNonce:
		return "nonce"
	case ValueHash:
		return "hash"
	case ValueWildcard:
		return "wildcard"
	}
	return "source"
}

// MarshalText lets value types appear by name in JSON reports.
func (v ValueType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *ValueType) UnmarshalText(text []byte) error {
	for t := ValueSource; t <= ValueWildcard; t++ {
		if t.String() == string(text) {
			*v = t
			return nil
		}
	}
	return fmt.Errorf("unknown csp value type %q", text)
}

// Value is one source expression as written in the policy.
type Value struct {
	Raw  string    `json:"raw"`
	Type ValueType `json:"type"`
}

// Directive is a named rule and its unique values in declaration order.
type Directive struct {
	Name   string  `json:"name"`
	Values []Value `json:"values"`
}

// Has reports whether the directive lists raw, compared case-insensitively.
func (d *Directive) Has(raw string) bool {
	for _, v := range d.Values {
		if strings.EqualFold(v.Raw, raw) {
			return true
		}
	}
	return false
}

// OfType returns the raw values of the given type.
func (d *Directive) OfType(t ValueType) []string {
	var out []string
	for _, v := range d.Values {
		if v.Type == t {
			out = append(out, v.Raw)
		}
	}
	return out
}

func (d *Directive) add(v Value) bool {
	for _, have := range d.Values {
		if sameValue(have, v) {
			return false
		}
	}
	d.Values = append(d.Values, v)
	return true
}

// sameValue compares keywords and the scheme and host of sources without
// regard to case. Nonces, hashes and source paths are case-sensitive.
func sameValue(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case ValueNonce, ValueHash:
		return a.Raw == b.Raw
	case ValueSource:
		aOrigin, aPath := splitSourcePath(a.Raw)
		bOrigin, bPath := splitSourcePath(b.Raw)
		return strings.EqualFold(aOrigin, bOrigin) && aPath == bPath
	}
	return strings.EqualFold(a.Raw, b.Raw)
}

func splitSourcePath(raw string) (origin, path string) {
	start := 0
	if i := strings.Index(raw, "://"); i >= 0 {
		start = i + 3
	}
	if i := strings.IndexByte(raw[start:], '/'); i >= 0 {
		return raw[:start+i], raw[start+i:]
	}
	return raw, ""
}

// Policy is a parsed Content-Security-Policy. Directive names are unique.
type Policy struct {
	Directives []Directive `json:"directives"`
}

// Get returns the directive called name, or nil.
func (p *Policy) Get(name string) *Directive {
	if p == nil {
		return nil
	}
	for i := range p.Directives {
		if p.Directives[i].Name == name {
			return &p.Directives[i]
		}
	}
	return nil
}

// Has reports whether the policy declares name.
func (p *Policy) Has(name string) bool {
	return p.Get(name) != nil
}

// Names returns directive names in declaration order.
func (p *Policy) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Directives))
	for _, d := range p.Directives {
		names = append(names, d.Name)
	}
	return names
}

// Empty reports whether the policy has no directives.
func (p *Policy) Empty() bool {
	return p == nil || len(p.Directives) == 0
}

// ScriptDirective returns script-src, falling back to default-src.
func (p *Policy) ScriptDirective() *Directive {
	if d := p.Get(DirectiveScriptSrc); d != nil {
		return d
	}
	return p.Get(DirectiveDefaultSrc)
}

// String renders the policy in canonical header form.
func (p *Policy) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(p.Directives))
	for _, d := range p.Directives {
		tokens := make([]string, 0, len(d.Values)+1)
		tokens = append(tokens, d.Name)
		for _, v := range d.Values {
			tokens = append(tokens, v.Raw)
		}
		parts = append(parts, strings.Join(tokens, " "))
	}
	return strings.Join(parts, "; ")
}

// Parse splits a raw policy into directives. Unknown or invalid directive
// names and duplicates produce warnings; the first occurrence of a directive
// wins. Parse never fails: an unusable value yields an empty policy.
func Parse(ctx *analysis.Context, raw string) *Policy {
	p := &Policy{}
	for _, chunk := range strings.Split(raw, ";") {
		chunk = strings.Trim(chunk, " \t\r\n;")
		if chunk == "" {
			continue
		}
		tokens := strings.Fields(chunk)
		name := strings.ToLower(tokens[0])
		if !validDirectiveName(name) {
			ctx.Add(analysis.Warning{
				Message:  "Failed to parse CSP directive.",
				Severity: analysis.SeveritySuspicious,
				Penalty:  consts.PenaltyMalformedCSP,
				Source:   analysis.SourceHeader,
			})
			continue
		}
		if p.Has(name) {
			ctx.Add(analysis.Warning{
				Message:        "Duplicate CSP directive '" + name + "' detected.",
				Severity:       analysis.SeveritySuspicious,
				Penalty:        consts.PenaltyDuplicateDirective,
				Source:         analysis.SourceHeader,
				MachineMessage: "csp_duplicate_directive",
			})
			continue
		}
		if _, known := knownDirectives[name]; !known {
			ctx.Logger().Debugw("unknown csp directive", "directive", name)
		}

		d := Directive{Name: name}
		for _, tok := range tokens[1:] {
			d.add(Value{Raw: tok, Type: classifyValue(tok)})
		}
		p.Directives = append(p.Directives, d)
	}
	return p
}

func classifyValue(tok string) ValueType {
	lower := strings.ToLower(tok)
	if strings.HasPrefix(lower, "'") {
		if strings.HasPrefix(lower, prefixNonce) {
			return ValueNonce
		}
		for _, prefix := range hashPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return ValueHash
			}
		}
		return ValueKeyword
	}
	if tok == Wildcard {
		return ValueWildcard
	}
	return ValueSource
}

func validDirectiveName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

// nonceValue strips the 'nonce-' prefix and closing quote.
func nonceValue(raw string) string {
	v := raw[len(prefixNonce):]
	return strings.TrimSuffix(v, "'")
}
