package analysis

import "strings"

// Severity ranks a warning from purely informational to critical.
type Severity string

const (
	SeverityInfo       Severity = "info"
	SeverityGood       Severity = "good"
	SeverityTracking   Severity = "tracking"
	SeveritySuspicious Severity = "suspicious"
	SeverityScam       Severity = "scam"
	SeverityDangerous  Severity = "dangerous"
	SeverityCritical   Severity = "critical"
	SeverityFetchError Severity = "fetchError"
)

var severityRank = map[Severity]int{
	SeverityGood:       0,
	SeverityInfo:       1,
	SeverityTracking:   2,
	SeveritySuspicious: 3,
	SeverityScam:       4,
	SeverityDangerous:  5,
	SeverityCritical:   6,
	SeverityFetchError: 7,
}

// Rank orders severities for sorting and filtering. Unknown severities rank lowest.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Label is the upper-case form used in text reports.
func (s Severity) Label() string {
	if s == SeverityFetchError {
		return "FETCH_ERROR"
	}
	return strings.ToUpper(string(s))
}

// ParseSeverity maps a label or name back to a Severity.
func ParseSeverity(value string) (Severity, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "fetch_error" {
		return SeverityFetchError, true
	}
	for s := range severityRank {
		if strings.ToLower(string(s)) == v {
			return s, true
		}
	}
	return "", false
}

// Source is the part of the response a warning was raised from.
type Source string

const (
	SourceHost         Source = "host"
	SourcePath         Source = "path"
	SourceQuery        Source = "query"
	SourceFragment     Source = "fragment"
	SourceRedirect     Source = "redirect"
	SourceCookie       Source = "cookie"
	SourceHeader       Source = "header"
	SourceBody         Source = "body"
	SourceTLS          Source = "tls"
	SourceGetError     Source = "getError"
	SourceResponseCode Source = "responseCode"
)

// Warning is a single security signal. It is never modified after being added to a Context.
type Warning struct {
	Message        string   `json:"message"`
	Severity       Severity `json:"severity"`
	Penalty        int      `json:"penalty"`
	URL            string   `json:"url"`
	Source         Source   `json:"source"`
	Flags          uint32   `json:"bit_flags,omitempty"`
	MachineMessage string   `json:"machine_message,omitempty"`
}
