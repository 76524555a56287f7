package scripts

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

var dataScriptTypes = []string{"application/json", "application/ld+json"}

// resolveAttributes annotates every target in place with its src, type, origin,
// nonce, integrity and crossorigin values.
func resolveAttributes(ctx *analysis.Context, body []byte, res *Result) {
	for i := range res.Targets {
		t := &res.Targets[i]
		eqs := MarkerPositions(body, t.Start, t.End+1, byteEqual)

		for _, eq := range eqs {
			switch {
			case t.srcPos < 0 && matchAttributeKey(body, eq, "src"):
				t.srcPos = eq
			case t.typePos < 0 && matchAttributeKey(body, eq, "type"):
				t.typePos = eq
			}
		}

		dataScript := false
		if t.typePos >= 0 {
			if value, ok := attributeText(body, t.typePos, t.End); ok {
				kind := strings.ToLower(strings.TrimSpace(value))
				if kind == "module" {
					t.IsModule = true
				}
				for _, dt := range dataScriptTypes {
					if kind == dt {
						dataScript = true
					}
				}
			}
		}

		switch {
		case t.srcPos < 0 && dataScript:
			t.Origin = OriginDataScript
		case t.srcPos < 0:
			t.Origin = OriginInline
		default:
			t.Origin, t.Src = classifySrc(body, t.srcPos, t.End)
		}

		if t.Origin == OriginInline || t.Origin == OriginDataURI {
			if value, ok := findAttribute(body, eqs, "nonce", t.End); ok {
				t.Nonce = value
			}
		}
		switch t.Origin {
		case OriginHTTPSExternal, OriginProtocolRelative, OriginRelative:
			if value, ok := findAttribute(body, eqs, "integrity", t.End); ok {
				t.Integrity = value
			}
		}

		if t.IsModule {
			t.Origin = moduleVariant(t.Origin)
			resolveCrossOrigin(ctx, body, eqs, t)
		}
	}
}

// moduleVariant maps a classic script origin to its module counterpart.
func moduleVariant(o Origin) Origin {
	switch o {
	case OriginInline:
		return OriginModuleInline
	case OriginHTTPExternal, OriginHTTPSExternal, OriginProtocolRelative:
		return OriginModuleExternal
	case OriginRelative:
		return OriginModuleRelative
	}
	return o
}

// classifySrc reads the quoted src value and classifies it in a fixed order:
// http://, https://, //, data:, relative path, unknown.
func classifySrc(body []byte, srcEq, tagEnd int) (Origin, string) {
	raw, ok := quotedValue(body, srcEq, tagEnd)
	if !ok || len(raw) == 0 || !utf8.Valid(raw) {
		return OriginMalformed, ""
	}
	value := string(raw)
	lower := bytes.ToLower(raw)

	switch {
	case bytes.HasPrefix(lower, []byte("http://")):
		return OriginHTTPExternal, value
	case bytes.HasPrefix(lower, []byte("https://")):
		return OriginHTTPSExternal, value
	case bytes.HasPrefix(lower, []byte("//")):
		return OriginProtocolRelative, value
	case bytes.HasPrefix(lower, []byte("data:")):
		return OriginDataURI, value
	case looksLikeRelativePath(lower):
		return OriginRelative, value
	}
	return OriginUnknown, value
}

// looksLikeRelativePath accepts values made of path characters that end in
// .js or .mjs, or that have no extension but carry a query string.
func looksLikeRelativePath(value []byte) bool {
	sawName := false
	for _, b := range value {
		if isAlnum(b) || bytes.IndexByte([]byte("_-.@~+"), b) >= 0 {
			sawName = true
			continue
		}
		if b == byteSlash {
			continue
		}
		break
	}
	if !sawName {
		return false
	}

	path := value
	if i := bytes.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if bytes.HasSuffix(path, []byte(".js")) || bytes.HasSuffix(path, []byte(".mjs")) {
		return true
	}
	return bytes.IndexByte(path, '.') < 0 && bytes.IndexByte(value, '?') >= 0
}

// findAttribute returns the quoted value of the first '=' in eqs named key.
// Values that are empty or not valid UTF-8 are skipped.
func findAttribute(body []byte, eqs []int, key string, tagEnd int) (string, bool) {
	for _, eq := range eqs {
		if !matchAttributeKey(body, eq, key) {
			continue
		}
		return attributeText(body, eq, tagEnd)
	}
	return "", false
}

func attributeText(body []byte, eq, tagEnd int) (string, bool) {
	raw, ok := quotedValue(body, eq, tagEnd)
	if !ok || len(raw) == 0 || !utf8.Valid(raw) {
		return "", false
	}
	return string(raw), true
}

// resolveCrossOrigin records the crossorigin value of a module script and
// warns on values a browser would not recognize.
func resolveCrossOrigin(ctx *analysis.Context, body []byte, eqs []int, t *Target) {
	url := t.Src
	if url == "" {
		url = ctx.URL()
	}

	for _, eq := range eqs {
		if !matchAttributeKey(body, eq, "crossorigin") {
			continue
		}
		value, ok := quotedValue(body, eq, t.End)
		if !ok {
			value = unquotedToken(body, eq+1, t.End)
			if len(value) == 0 {
				ctx.Add(analysis.Warning{
					Message:  "Malformed crossorigin attribute (no `=` or invalid format).",
					Severity: analysis.SeveritySuspicious,
					Penalty:  consts.PenaltyCrossOriginUnknown,
					URL:      url,
					Source:   analysis.SourceBody,
				})
				return
			}
		}
		v := strings.ToLower(strings.TrimSpace(string(value)))
		switch v {
		case "", "anonymous", "use-credentials":
			t.CrossOrigin = &v
		default:
			ctx.Add(analysis.Warning{
				Message:  fmt.Sprintf("Script module has unrecognized crossorigin value: '%s'", v),
				Severity: analysis.SeveritySuspicious,
				Penalty:  consts.PenaltyCrossOriginUnknown,
				URL:      url,
				Source:   analysis.SourceBody,
			})
		}
		return
	}

	if hasBareAttribute(body, t.Start, t.End, "crossorigin") {
		empty := ""
		t.CrossOrigin = &empty
	}
}

func unquotedToken(body []byte, from, limit int) []byte {
	from, limit = clamp(body, from, limit)
	for from < limit && isSpace(body[from]) {
		from++
	}
	end := from
	for end < limit && !isSpace(body[end]) && body[end] != byteGT && body[end] != byteSlash {
		end++
	}
	return body[from:end]
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
