package csp

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// MatchReport records which scripts a browser would run under a directive.
// Indexes refer to scripts.Result.Targets.
type MatchReport struct {
	// ShortCircuit is set when a bare wildcard made every script allowed.
	ShortCircuit bool `json:"short_circuit,omitempty"`
	Allowed      []int `json:"allowed,omitempty"`
	Blocked      []int `json:"blocked,omitempty"`
	// Unprotected lists scripts lacking a nonce or hash under 'strict-dynamic'.
	Unprotected   []int    `json:"unprotected,omitempty"`
	UnusedSources []string `json:"unused_sources,omitempty"`
}

// IsAllowed reports whether the script at index i was allowed.
func (r *MatchReport) IsAllowed(i int) bool {
	for _, a := range r.Allowed {
		if a == i {
			return true
		}
	}
	return false
}

type allowedSource struct {
	raw    string
	scheme string
	host   string
	port   string
	path   string
	self   bool
	used   bool
}

type scriptURL struct {
	scheme string
	host   string
	port   string
	path   string
}

// matcher holds the state of one MatchScripts pass.
type matcher struct {
	ctx    *analysis.Context
	body   []byte
	res    *scripts.Result
	src    Source
	report MatchReport

	nonces        map[string]struct{}
	hashes        map[string]struct{}
	sources       []allowedSource
	schemeOnly    map[string]bool
	hasSelf       bool
	hasData       bool
	strictDynamic bool
	unsafeInline  bool
}

// MatchScripts simulates which of the extracted scripts d allows. d is the
// script-src directive or its default-src fallback. Per-script findings are
// appended to the targets; summary warnings go to ctx. MatchScripts never
// fails: an empty or nil result yields an empty report.
func MatchScripts(ctx *analysis.Context, body []byte, res *scripts.Result, d *Directive, src Source) MatchReport {
	if res == nil || d == nil {
		return MatchReport{}
	}
	var remaining []int
	for i := range res.Targets {
		switch res.Targets[i].Origin {
		case scripts.OriginDataScript, scripts.OriginMalformed, scripts.OriginUnknown:
			continue
		}
		remaining = append(remaining, i)
	}
	if len(remaining) == 0 {
		return MatchReport{}
	}

	if d.Has(Wildcard) {
		ctx.Add(analysis.Warning{
			Message:  "wildcard (*) in " + d.Name + ", skipping CSP script-src and script src check",
			Severity: analysis.SeveritySuspicious,
			Penalty:  src.penalty(consts.PenaltyWildcardSkip),
			Source:   analysis.SourceHeader,
		})
		return MatchReport{ShortCircuit: true, Allowed: remaining}
	}

	m := &matcher{ctx: ctx, body: body, res: res, src: src}
	m.loadDirective(d)
	m.checkScriptSide(remaining)

	remaining = m.allowByNonceOrHash(remaining)
	if len(remaining) == 0 {
		ctx.Add(analysis.Warning{
			Message:  "All script whitelisted by nonce in CSP",
			Severity: analysis.SeverityGood,
			Penalty:  src.penalty(consts.PenaltyAllScriptsNonced),
			Source:   analysis.SourceHeader,
		})
		return m.report
	}

	if m.strictDynamic {
		for _, i := range remaining {
			m.res.Targets[i].AddFinding(analysis.SeveritySuspicious, "Strict-Dynamic CSP but non-protected script")
		}
		m.report.Unprotected = remaining
		ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("Strict-Dynamic CSP but non-protected script: %d", len(remaining)),
			Severity: analysis.SeveritySuspicious,
			Penalty:  src.penalty(consts.PenaltyStrictDynamicUnprotected),
			Source:   analysis.SourceHeader,
		})
		return m.report
	}

	remaining = m.allowSelfAndData(remaining)
	remaining = m.allowInline(remaining)
	m.matchSources(remaining)
	m.reportUnused()

	if n := len(m.report.Blocked); n > 0 {
		ctx.Add(analysis.Warning{
			Message:        fmt.Sprintf("Some script in the html are not allowed by the CSP: %d", n),
			Severity:       analysis.SeverityInfo,
			Penalty:        consts.PenaltyInformational,
			Source:         analysis.SourceHeader,
			MachineMessage: "csp_scripts_not_allowed",
		})
	}
	sort.Ints(m.report.Allowed)
	sort.Ints(m.report.Blocked)
	return m.report
}

func (m *matcher) loadDirective(d *Directive) {
	m.nonces = make(map[string]struct{})
	m.hashes = make(map[string]struct{})
	m.schemeOnly = make(map[string]bool)

	for _, v := range d.Values {
		lower := strings.ToLower(v.Raw)
		switch v.Type {
		case ValueNonce:
			m.nonces[nonceValue(v.Raw)] = struct{}{}
		case ValueHash:
			m.hashes[strings.Trim(v.Raw, "'")] = struct{}{}
		case ValueKeyword:
			switch lower {
			case KeywordSelf:
				m.hasSelf = true
				m.sources = append(m.sources, m.selfSource())
			case KeywordStrictDynamic:
				m.strictDynamic = true
			case KeywordUnsafeInline:
				m.unsafeInline = true
			}
		case ValueSource:
			switch lower {
			case SchemeData, "'data:'":
				m.hasData = true
				continue
			case SchemeBlob:
				continue
			case SchemeHTTP, SchemeHTTPS:
				m.schemeOnly[strings.TrimSuffix(lower, ":")] = true
				continue
			}
			if strings.HasPrefix(lower, "http://") {
				m.ctx.Add(analysis.Warning{
					Message:        "CSP source uses insecure scheme: " + v.Raw,
					Severity:       analysis.SeveritySuspicious,
					Penalty:        m.src.penalty(consts.PenaltyInsecureSource),
					Source:         analysis.SourceHeader,
					MachineMessage: "csp_http_source",
				})
			}
			if s, ok := parseSource(v.Raw); ok {
				m.sources = append(m.sources, s)
			}
		}
	}

	if len(m.nonces) > 1 {
		m.ctx.Add(analysis.Warning{
			Message:  "Too many nonce values in script-src",
			Severity: analysis.SeverityInfo,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceHeader,
		})
	}
}

// checkScriptSide flags insecure script URLs and weak or inconsistent nonces.
func (m *matcher) checkScriptSide(remaining []int) {
	seen := make(map[string]struct{})
	var nonces []string
	for _, i := range remaining {
		t := &m.res.Targets[i]
		if t.Nonce != "" {
			if _, ok := seen[t.Nonce]; !ok {
				seen[t.Nonce] = struct{}{}
				nonces = append(nonces, t.Nonce)
			}
		}
		if t.Origin.IsExternal() && strings.HasPrefix(strings.ToLower(t.Src), "http://") {
			m.ctx.Add(analysis.Warning{
				Message:        "Script source uses insecure scheme: " + t.Src,
				Severity:       analysis.SeveritySuspicious,
				Penalty:        m.src.penalty(consts.PenaltyInsecureSource),
				Source:         analysis.SourceHeader,
				MachineMessage: "script_http_source",
			})
		}
	}

	if len(nonces) > 1 {
		m.ctx.Add(analysis.Warning{
			Message:  "Different nonce values in script attr",
			Severity: analysis.SeverityInfo,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceBody,
		})
	}
	sort.Strings(nonces)
	for _, n := range nonces {
		if h := shannonEntropy(n); h <= consts.NonceEntropyThreshold {
			m.ctx.Add(analysis.Warning{
				Message:        fmt.Sprintf("nonce value `%s` has a low entropy %f.", n, h),
				Severity:       analysis.SeveritySuspicious,
				Penalty:        m.src.penalty(consts.PenaltyWeakNonce),
				Source:         analysis.SourceHeader,
				MachineMessage: "nonce_entropy_low",
			})
		}
	}
}

// allowByNonceOrHash allows every script carrying a listed nonce and every
// inline script whose body matches a listed hash.
func (m *matcher) allowByNonceOrHash(remaining []int) []int {
	var keep []int
	for _, i := range remaining {
		t := &m.res.Targets[i]
		if t.Nonce != "" {
			if _, ok := m.nonces[t.Nonce]; ok {
				m.report.Allowed = append(m.report.Allowed, i)
				continue
			}
			if len(m.nonces) > 0 {
				t.AddFinding(analysis.SeveritySuspicious, "Script nonce is not listed in the CSP")
			}
		}
		if t.Origin.IsInline() && len(m.hashes) > 0 && m.hashListed(t.Content(m.body)) {
			m.report.Allowed = append(m.report.Allowed, i)
			continue
		}
		keep = append(keep, i)
	}
	return keep
}

func (m *matcher) hashListed(content []byte) bool {
	s256 := sha256.Sum256(content)
	s384 := sha512.Sum384(content)
	s512 := sha512.Sum512(content)
	for _, h := range []string{
		"sha256-" + base64.StdEncoding.EncodeToString(s256[:]),
		"sha384-" + base64.StdEncoding.EncodeToString(s384[:]),
		"sha512-" + base64.StdEncoding.EncodeToString(s512[:]),
	} {
		if _, ok := m.hashes[h]; ok {
			return true
		}
	}
	return false
}

func (m *matcher) allowSelfAndData(remaining []int) []int {
	var keep, relative []int
	for _, i := range remaining {
		switch o := m.res.Targets[i].Origin; {
		case o.IsRelative():
			relative = append(relative, i)
		case o == scripts.OriginDataURI && m.hasData:
			m.report.Allowed = append(m.report.Allowed, i)
		default:
			keep = append(keep, i)
		}
	}
	if len(relative) == 0 {
		return keep
	}
	if m.hasSelf {
		m.report.Allowed = append(m.report.Allowed, relative...)
		for k := range m.sources {
			if m.sources[k].self {
				m.sources[k].used = true
			}
		}
		return keep
	}
	m.ctx.Add(analysis.Warning{
		Message:  "self missing from CSP but relative script are present",
		Severity: analysis.SeveritySuspicious,
		Penalty:  m.src.penalty(consts.PenaltyRelativeWithoutSelf),
		Source:   analysis.SourceHeader,
	})
	for _, i := range relative {
		m.block(i, "Relative script blocked: 'self' is not allowed by the CSP")
	}
	return keep
}

// allowInline decides inline scripts left after nonce and hash matching.
// 'unsafe-inline' only applies when the directive lists no nonce or hash.
func (m *matcher) allowInline(remaining []int) []int {
	inlineAllowed := m.unsafeInline && len(m.nonces) == 0 && len(m.hashes) == 0
	var keep []int
	for _, i := range remaining {
		o := m.res.Targets[i].Origin
		switch {
		case !o.IsInline() && o != scripts.OriginDataURI:
			keep = append(keep, i)
		case o.IsInline() && inlineAllowed:
			m.report.Allowed = append(m.report.Allowed, i)
		case o.IsInline():
			m.block(i, "Inline script blocked: no matching nonce or hash in the CSP")
		default:
			m.block(i, "data: script blocked: data: is not allowed by the CSP")
		}
	}
	return keep
}

func (m *matcher) matchSources(remaining []int) {
	for _, i := range remaining {
		t := &m.res.Targets[i]
		u, ok := parseScriptURL(t.Src, m.ctx.URL())
		if ok && m.allows(u) {
			m.report.Allowed = append(m.report.Allowed, i)
			continue
		}
		m.ctx.Add(analysis.Warning{
			Message:  "Script not covered by CSP policy: " + t.Src,
			Severity: analysis.SeveritySuspicious,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceHeader,
		})
		m.block(i, "Script not covered by CSP policy")
	}
}

func (m *matcher) block(i int, finding string) {
	m.res.Targets[i].AddFinding(analysis.SeveritySuspicious, finding)
	m.report.Blocked = append(m.report.Blocked, i)
}

func (m *matcher) allows(u scriptURL) bool {
	if m.schemeOnly[u.scheme] || (u.scheme == "https" && m.schemeOnly["http"]) {
		return true
	}
	for k := range m.sources {
		if m.sources[k].matches(u) {
			m.sources[k].used = true
			return true
		}
	}
	return false
}

func (m *matcher) reportUnused() {
	var unused []string
	for _, s := range m.sources {
		if !s.used {
			unused = append(unused, s.host+s.path)
		}
	}
	if len(unused) == 0 {
		return
	}
	m.report.UnusedSources = unused
	msg := "CSP defines unused script sources: " + strings.Join(unused, ", ")
	if len(unused) > consts.UnusedSourcesListed {
		msg = fmt.Sprintf("CSP defines %d script sources that were never used: %s", len(unused), strings.Join(unused, ", "))
	}
	m.ctx.Add(analysis.Warning{
		Message:        msg,
		Severity:       analysis.SeverityInfo,
		Penalty:        consts.PenaltyInformational,
		Source:         analysis.SourceHeader,
		MachineMessage: "csp_unused_sources",
	})
}

func (s *allowedSource) matches(u scriptURL) bool {
	switch s.scheme {
	case "":
	case "http":
		if u.scheme != "http" && u.scheme != "https" {
			return false
		}
	default:
		if u.scheme != s.scheme {
			return false
		}
	}

	if strings.HasPrefix(s.host, "*.") {
		suffix := s.host[2:]
		if strings.Count(u.host, ".") <= strings.Count(suffix, ".") || !strings.HasSuffix(u.host, "."+suffix) {
			return false
		}
	} else if u.host != s.host {
		return false
	}

	if s.port != "*" && portOrDefault(s.port, u.scheme) != portOrDefault(u.port, u.scheme) {
		return false
	}

	switch {
	case s.path == "" || s.path == "/":
		return true
	case strings.HasSuffix(s.path, "/"):
		return strings.HasPrefix(u.path, s.path)
	default:
		return u.path == s.path
	}
}

// selfSource is the page origin. Its scheme and port come from the page URL
// so 'self' on an https page does not match http scripts.
func (m *matcher) selfSource() allowedSource {
	s := allowedSource{raw: KeywordSelf, scheme: "https", host: m.ctx.Host(), self: true}
	if page, ok := parseScriptURL(m.ctx.URL(), ""); ok {
		s.scheme, s.port = page.scheme, page.port
	}
	return s
}

func portOrDefault(port, scheme string) string {
	if port != "" {
		return port
	}
	switch scheme {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}

// parseSource splits a host source such as https://cdn.example.com:443/js/
// into its parts. Hosts are lowercased; paths keep their case.
func parseSource(raw string) (allowedSource, bool) {
	s := allowedSource{raw: raw}
	rest := strings.Trim(raw, `'"`)
	if i := strings.Index(rest, "://"); i >= 0 {
		s.scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
	}
	hostPort := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostPort, s.path = rest[:i], rest[i:]
	}
	s.host, s.port = splitPort(strings.ToLower(hostPort))
	return s, s.host != ""
}

// parseScriptURL resolves a script src into scheme, host and path. Query and
// fragment are ignored for matching. Protocol-relative URLs take the scheme
// of the page.
func parseScriptURL(src, pageURL string) (scriptURL, bool) {
	var u scriptURL
	rest := strings.TrimSpace(src)
	switch {
	case strings.HasPrefix(rest, "//"):
		u.scheme = "https"
		if strings.HasPrefix(strings.ToLower(pageURL), "http://") {
			u.scheme = "http"
		}
		rest = rest[2:]
	default:
		i := strings.Index(rest, "://")
		if i < 0 {
			return u, false
		}
		u.scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	hostPort := rest
	u.path = "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostPort, u.path = rest[:i], rest[i:]
	}
	u.host, u.port = splitPort(strings.ToLower(hostPort))
	return u, u.host != ""
}

func splitPort(hostPort string) (string, string) {
	if i := strings.LastIndexByte(hostPort, ':'); i >= 0 && !strings.Contains(hostPort[i:], "]") {
		return hostPort[:i], hostPort[i+1:]
	}
	return hostPort, ""
}
