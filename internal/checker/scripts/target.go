package scripts

import (
	"fmt"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
)

// Origin classifies where a script's code comes from.
type Origin int

const (
	OriginUnknown Origin = iota
	OriginInline
	OriginHTTPExternal
	OriginHTTPSExternal
	OriginProtocolRelative
	OriginRelative
	OriginDataURI
	OriginModuleInline
	OriginModuleExternal
	OriginModuleRelative
	OriginDataScript
	OriginMalformed
)

var originNames = map[Origin]string{
	OriginUnknown:          "unknown",
	OriginInline:           "inline",
	OriginHTTPExternal:     "httpExternal",
	OriginHTTPSExternal:    "httpsExternal",
	OriginProtocolRelative: "protocolRelative",
	OriginRelative:         "relative",
	OriginDataURI:          "dataURI",
	OriginModuleInline:     "moduleInline",
	OriginModuleExternal:   "moduleExternal",
	OriginModuleRelative:   "moduleRelative",
	OriginDataScript:       "dataScript",
	OriginMalformed:        "malformed",
}

func (o Origin) String() string {
	if name, ok := originNames[o]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets origins appear by name in JSON reports.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Origin) UnmarshalText(text []byte) error {
	for origin, name := range originNames {
		if name == string(text) {
			*o = origin
			return nil
		}
	}
	return fmt.Errorf("unknown script origin %q", text)
}

// IsInline reports whether the script body lives in the page.
func (o Origin) IsInline() bool {
	return o == OriginInline || o == OriginModuleInline
}

// IsRelative reports whether the script is served from the page's own origin by path.
func (o Origin) IsRelative() bool {
	return o == OriginRelative || o == OriginModuleRelative
}

// IsExternal reports whether the script names an absolute or protocol-relative URL.
func (o Origin) IsExternal() bool {
	switch o {
	case OriginHTTPExternal, OriginHTTPSExternal, OriginProtocolRelative, OriginModuleExternal:
		return true
	}
	return false
}

// Context is the document section a script tag appears in.
type Context int

const (
	ContextUnknown Context = iota
	ContextInHead
	ContextInBody
)

func (c Context) String() string {
	switch c {
	case ContextInHead:
		return "inHead"
	case ContextInBody:
		return "inBody"
	}
	return "unknown"
}

// MarshalText lets contexts appear by name in JSON reports.
func (c Context) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Context) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inHead":
		*c = ContextInHead
	case "inBody":
		*c = ContextInBody
	case "unknown":
		*c = ContextUnknown
	default:
		return fmt.Errorf("unknown script context %q", text)
	}
	return nil
}

// Finding is a per-script observation attached during analysis.
type Finding struct {
	Message  string            `json:"message"`
	Severity analysis.Severity `json:"severity"`
	Pos      int               `json:"pos"`
}

// Target is one <script> element located in the body.
//
// Start is the '<' of the open tag, End the '>' closing the open tag and
// EndTagPos the '<' of the matching </script>. Start < End <= EndTagPos.
type Target struct {
	Start         int       `json:"start"`
	End           int       `json:"end"`
	EndTagPos     int       `json:"end_tag_pos"`
	Origin        Origin    `json:"origin"`
	Context       Context   `json:"context"`
	Src           string    `json:"src,omitempty"`
	Nonce         string    `json:"nonce,omitempty"`
	Integrity     string    `json:"integrity,omitempty"`
	CrossOrigin   *string   `json:"crossorigin,omitempty"`
	IsModule      bool      `json:"is_module,omitempty"`
	IsSelfClosing bool      `json:"is_self_closing,omitempty"`
	Findings      []Finding `json:"findings,omitempty"`

	srcPos  int
	typePos int
}

// Content returns the bytes between the open tag and </script>.
func (t *Target) Content(body []byte) []byte {
	lo, hi := clamp(body, t.End+1, t.EndTagPos)
	return body[lo:hi]
}

// AddFinding appends a finding at the script's open tag.
func (t *Target) AddFinding(severity analysis.Severity, message string) {
	t.Findings = append(t.Findings, Finding{Message: message, Severity: severity, Pos: t.Start})
}

// Range is a half-open byte range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Result is the ordered arena of scripts found in one body. Scripts refer to
// each other by index into Targets.
type Result struct {
	Targets   []Target `json:"targets"`
	HTMLRange Range    `json:"html_range"`
	Head      Range    `json:"head"`
}

// HTMLSize is the byte length of the HTML range, used for ratio math.
func (r *Result) HTMLSize() int {
	return r.HTMLRange.Len()
}

// Indexes returns the indexes of targets whose origin satisfies keep.
func (r *Result) Indexes(keep func(Origin) bool) []int {
	var out []int
	for i := range r.Targets {
		if keep(r.Targets[i].Origin) {
			out = append(out, i)
		}
	}
	return out
}

// Count returns how many targets have the given origin.
func (r *Result) Count(o Origin) int {
	n := 0
	for i := range r.Targets {
		if r.Targets[i].Origin == o {
			n++
		}
	}
	return n
}
