package inline

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// Warning bits carried on inline-content warnings.
const (
	BitJSONAtobChain uint32 = 1 << iota
	BitSetCookie
	BitReadCookie
	BitHighRatio
	BitHighDensity
	BitLargePage
	BitDataURI
	BitProtocolRelative
	BitUnknownOrigin
)

// span maps a slice of the soup back to the script it was copied from.
type span struct {
	start, end int
	script     int
}

// soup is every inline script body joined with '\n'.
type soup struct {
	buf   []byte
	spans []span
}

func buildSoup(body []byte, res *scripts.Result) soup {
	var s soup
	for i := range res.Targets {
		t := &res.Targets[i]
		if !t.Origin.IsInline() {
			continue
		}
		content := t.Content(body)
		if len(content) == 0 {
			continue
		}
		start := len(s.buf)
		s.buf = append(s.buf, content...)
		s.buf = append(s.buf, '\n')
		s.spans = append(s.spans, span{start: start, end: len(s.buf), script: i})
	}
	return s
}

// owner finds the span containing pos.
func (s *soup) owner(pos int) (span, bool) {
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].end > pos })
	if i == len(s.spans) || pos < s.spans[i].start {
		return span{}, false
	}
	return s.spans[i], true
}

type scanner struct {
	ctx  *analysis.Context
	res  *scripts.Result
	soup soup
}

// finding attaches a finding at the body offset matching soup position pos.
func (sc *scanner) finding(pos int, sev analysis.Severity, msg string) {
	sp, ok := sc.soup.owner(pos)
	if !ok {
		return
	}
	t := &sc.res.Targets[sp.script]
	t.Findings = append(t.Findings, scripts.Finding{
		Message:  msg,
		Severity: sev,
		Pos:      t.End + 1 + pos - sp.start,
	})
}

// Scan looks for suspicious call sites and accessors inside inline scripts.
// Calls are found from `(` markers and accessors from `.` markers, each
// narrowed by cheap byte filters before the full comparison.
func Scan(ctx *analysis.Context, body []byte, res *scripts.Result) {
	if res == nil {
		return
	}
	sc := &scanner{ctx: ctx, res: res, soup: buildSoup(body, res)}
	if len(sc.soup.buf) > 0 {
		setter := sc.matchCalls(sc.callCandidates(), InlinePercent(res))
		sc.matchAccessors(sc.accessorCandidates(), setter)
	}
	checkSize(ctx, res)
}

func (sc *scanner) callCandidates() []int {
	buf := sc.soup.buf
	parens := scripts.MarkerPositions(buf, 0, len(buf), '(')
	var first []int
	for _, p := range parens {
		if p >= 1 && lastCallBytes[buf[p-1]|0x20] {
			first = append(first, p)
		}
	}
	var out []int
	for _, p := range first {
		if p >= 2 && secondLastCallBytes[buf[p-2]|0x20] {
			out = append(out, p)
		}
	}
	return out
}

func (sc *scanner) accessorCandidates() []int {
	buf := sc.soup.buf
	out := scripts.MarkerPositions(buf, 0, len(buf), '.')
	for k := 0; k < len(accessorHeadBytes); k++ {
		kept := out[:0]
		for _, p := range out {
			if q := p + 1 + k; q < len(buf) && accessorHeadBytes[k][buf[q]|0x20] {
				kept = append(kept, p)
			}
		}
		out = kept
	}
	return out
}

// matchCalls confirms call candidates and reports whether a decoding or
// executing function was seen.
func (sc *scanner) matchCalls(positions []int, inlinePercent int) bool {
	buf := sc.soup.buf
	setter := false
	counts := make(map[string]int)
	var order []*callPattern

	for _, pos := range positions {
		for i := range callPatterns {
			p := &callPatterns[i]
			start := pos - len(p.bytes)
			if start < 0 || !bytes.EqualFold(buf[start:pos], p.bytes) {
				continue
			}
			if start > 0 && isIdent(buf[start-1]) {
				continue
			}
			if p.setter {
				setter = true
			}

			switch p.name {
			case "atob":
				lead := start - consts.AtobJSONParseWindow
				if lead < 0 {
					lead = 0
				}
				if bytes.Contains(buf[lead:pos], jsonParse) {
					sc.finding(pos, analysis.SeverityDangerous, "JSON decoding via atob")
					sc.ctx.Add(analysis.Warning{
						Message:        "Inline JavaScript is decoding a base64 blob with `atob()` directly after `JSON.parse(...)`. This is highly suspicious.",
						Severity:       analysis.SeverityDangerous,
						Penalty:        consts.PenaltyAtobJSONParse,
						Source:         analysis.SourceBody,
						Flags:          BitJSONAtobChain,
						MachineMessage: "js_json_atob_chain",
					})
				}
			case nameGetElementByID:
				end := pos + consts.AutoSubmitWindow
				if end > len(buf) {
					end = len(buf)
				}
				if bytes.Contains(buf[pos:end], submitCall) {
					sc.finding(pos, analysis.SeverityCritical, "Auto submit detected")
					sc.ctx.Add(analysis.Warning{
						Message:  "JS function: getElementById(...) detected inline followed by 'submit'.",
						Severity: analysis.SeverityCritical,
						Penalty:  consts.PenaltyCritical,
						Source:   analysis.SourceBody,
					})
				}
			}
			if p.name == nameGetElementByID {
				break
			}

			if counts[p.name] == 0 {
				order = append(order, p)
			}
			counts[p.name]++
			sc.finding(pos, p.severity, p.name+" call detected")
			if p.name == "document.write" {
				sc.finding(pos, analysis.SeverityDangerous, "DOM manipulation via document.write()")
			}
			break
		}
	}

	for _, p := range order {
		if p.name == "document.write" && inlinePercent > consts.RatioDangerPercent {
			sc.ctx.Add(analysis.Warning{
				Message:  "High script density inline block using `document.write()` suggests dynamic document manipulation: high risk of cloaked behavior.",
				Severity: analysis.SeverityCritical,
				Penalty:  consts.PenaltyCritical,
				Source:   analysis.SourceBody,
			})
			continue
		}
		sc.ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("Suspicious JS function: %s(...) detected inline %d time(s).", p.name, counts[p.name]),
			Severity: p.severity,
			Penalty:  p.penalty,
			Source:   analysis.SourceBody,
		})
	}
	return setter
}

type cookieState struct {
	set  bool
	read bool
}

func (sc *scanner) matchAccessors(positions []int, setter bool) {
	buf := sc.soup.buf
	cookies := make(map[int]*cookieState)
	counts := make(map[string]int)
	var order []string
	rules := make(map[string]accessorPattern)

	for _, pos := range positions {
		for _, a := range accessorPatterns {
			end := pos + 1 + len(a.bytes)
			if end > len(buf) || !bytes.Equal(buf[pos+1:end], a.bytes) {
				continue
			}
			if end < len(buf) && isIdent(buf[end]) {
				continue
			}

			display := "." + a.name
			severity := a.severity
			if a.name == accessorCookie {
				sp, ok := sc.soup.owner(pos)
				if !ok {
					break
				}
				st := cookies[sp.script]
				if st == nil {
					st = &cookieState{}
					cookies[sp.script] = st
				}
				write := isCookieWrite(buf, end)
				sc.cookieSignal(pos, st, write)
				display, severity = "document.cookie", analysis.SeverityInfo
				if write {
					display, severity = "document.cookie=", analysis.SeveritySuspicious
					rules[display] = accessorPattern{name: display, penalty: consts.PenaltyJSCookieAccess, severity: analysis.SeveritySuspicious}
				}
			} else {
				rules[display] = a
			}

			if counts[display] == 0 {
				order = append(order, display)
			}
			counts[display]++
			sc.finding(pos, severity, "'"+display+"'")
			break
		}
	}

	for _, name := range order {
		rule, ok := rules[name]
		if !ok {
			continue
		}
		w := analysis.Warning{
			Message:  fmt.Sprintf("Suspicious JS accessor: %s detected inline %d time(s).", name, counts[name]),
			Severity: rule.severity,
			Penalty:  rule.penalty,
			Source:   analysis.SourceBody,
		}
		if setter {
			w.Message = fmt.Sprintf("Suspicious JS setter function with %s detected inline. Critical signal of obfuscation.", name)
			w.Severity = analysis.SeverityDangerous
			w.Penalty = consts.PenaltyObfuscatedSetter
		}
		sc.ctx.Add(w)
	}
}

// cookieSignal reports the first cookie write and the first cookie read of
// each script.
func (sc *scanner) cookieSignal(pos int, st *cookieState, write bool) {
	switch {
	case write && !st.set:
		st.set = true
		sc.finding(pos, analysis.SeveritySuspicious, "Setting cookies")
		sc.ctx.Add(analysis.Warning{
			Message:        "JavaScript is editing or creating a cookie using `document.cookie = ...`. There are very few legitimate reasons to do this, such as fingerprinting, reload or cookie clearing, or silent tracking of user behavior.",
			Severity:       analysis.SeveritySuspicious,
			Penalty:        consts.PenaltyJSSetCookie,
			Source:         analysis.SourceBody,
			Flags:          BitSetCookie,
			MachineMessage: "js_set_cookie",
		})
	case !write && !st.read:
		st.read = true
		sc.finding(pos, analysis.SeverityInfo, "Reading cookies")
		sc.ctx.Add(analysis.Warning{
			Message:        "JavaScript is reading cookies via `document.cookie`. May be used for user tracking, or legitimate reasons.",
			Severity:       analysis.SeverityInfo,
			Penalty:        consts.PenaltyInformational,
			Source:         analysis.SourceBody,
			Flags:          BitReadCookie,
			MachineMessage: "js_read_cookie",
		})
	}
}

// isCookieWrite reports an assignment right after the accessor. `==` is a
// comparison, not a write.
func isCookieWrite(buf []byte, end int) bool {
	i := end
	for i < len(buf) && i < end+consts.CookieSetterWindow && (buf[i] == ' ' || buf[i] == '\t') {
		i++
	}
	if i >= len(buf) || buf[i] != '=' {
		return false
	}
	return i+1 >= len(buf) || buf[i+1] != '='
}

func checkSize(ctx *analysis.Context, res *scripts.Result) {
	n := 0
	for i := range res.Targets {
		t := &res.Targets[i]
		if t.Origin.IsInline() && contentLen(t) >= consts.LargeInlineScriptBytes {
			n++
			t.AddFinding(analysis.SeveritySuspicious, "Inline script exceeds 100kB")
		}
	}
	if n > 0 {
		ctx.Addf(analysis.SeveritySuspicious, consts.PenaltyInlineOver100kB*n,
			"%d inline script(s) exceed 100kB, which is unusually large.", n)
	}
}

func contentLen(t *scripts.Target) int {
	if n := t.EndTagPos - t.End - 1; n > 0 {
		return n
	}
	return 0
}

func isIdent(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
