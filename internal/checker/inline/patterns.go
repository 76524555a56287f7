package inline

import (
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// callPattern is a function name matched right before a `(`.
type callPattern struct {
	name     string
	bytes    []byte
	penalty  int
	severity analysis.Severity
	// setter marks functions that decode or execute data, which turns any
	// storage or cookie accessor in the same page into an obfuscation signal.
	setter bool
}

var callPatterns = buildCallPatterns([]callPattern{
	{name: "eval", penalty: consts.PenaltyCritical, severity: analysis.SeverityCritical, setter: true},
	{name: `window["eval"]`, penalty: consts.PenaltyCritical, severity: analysis.SeverityCritical, setter: true},
	{name: "atob", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous, setter: true},
	{name: "btoa", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous, setter: true},
	{name: "Function", penalty: consts.PenaltyInlineDefault, severity: analysis.SeveritySuspicious, setter: true},
	{name: "fetch", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous},
	{name: "xmlhttprequest", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous},
	{name: "window.open", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous},
	{name: "document.write", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous},
	{name: "location.href", penalty: consts.PenaltyInlineHigh, severity: analysis.SeverityDangerous},
	{name: "location.replace", penalty: consts.PenaltyInlineMedium, severity: analysis.SeveritySuspicious},
	{name: "location.assign", penalty: consts.PenaltyInlineMedium, severity: analysis.SeveritySuspicious},
	{name: "innerhtml", penalty: consts.PenaltyInlineMedium, severity: analysis.SeveritySuspicious},
	{name: "outerhtml", penalty: consts.PenaltyInlineMedium, severity: analysis.SeveritySuspicious},
	{name: "unescape", penalty: consts.PenaltyInlineMedium, severity: analysis.SeveritySuspicious},
	{name: "escape", penalty: consts.PenaltyInlineMedium, severity: analysis.SeveritySuspicious},
	{name: "sendbeacon", penalty: consts.PenaltyInlineDefault, severity: analysis.SeveritySuspicious},
	{name: "websocket", penalty: consts.PenaltyInlineDefault, severity: analysis.SeveritySuspicious},
	{name: "import", penalty: consts.PenaltyInlineDefault, severity: analysis.SeveritySuspicious},
	{name: `document["write"]`, penalty: consts.PenaltyInlineDefault, severity: analysis.SeveritySuspicious},
	{name: "console.log", penalty: consts.PenaltyInlineLow, severity: analysis.SeverityInfo},
	{name: "getElementById", penalty: consts.PenaltyCritical, severity: analysis.SeverityCritical},
})

const nameGetElementByID = "getElementById"

func buildCallPatterns(in []callPattern) []callPattern {
	for i := range in {
		in[i].bytes = []byte(in[i].name)
	}
	return in
}

// tailBytes returns the set of lowered bytes found at offset back from the
// end of any call pattern (1 is the last byte).
func tailBytes(back int) [256]bool {
	var set [256]bool
	for _, p := range callPatterns {
		if len(p.bytes) >= back {
			set[p.bytes[len(p.bytes)-back]|0x20] = true
		}
	}
	return set
}

var (
	lastCallBytes       = tailBytes(1)
	secondLastCallBytes = tailBytes(2)
)

// accessorPattern is a property name matched right after a `.`.
type accessorPattern struct {
	name     string
	bytes    []byte
	penalty  int
	severity analysis.Severity
}

const accessorCookie = "cookie"

var accessorPatterns = []accessorPattern{
	{name: accessorCookie, bytes: []byte(accessorCookie)},
	{name: "localStorage", bytes: []byte("localStorage"), penalty: consts.PenaltyJSStorage, severity: analysis.SeveritySuspicious},
	{name: "setItem", bytes: []byte("setItem"), penalty: consts.PenaltyJSSetItem, severity: analysis.SeveritySuspicious},
	{name: "WebAssembly", bytes: []byte("WebAssembly"), penalty: consts.PenaltyJSWebAssembly, severity: analysis.SeverityDangerous},
}

// headBytes returns the lowered bytes at position i of every accessor name.
func headBytes(i int) [256]bool {
	var set [256]bool
	for _, p := range accessorPatterns {
		if len(p.bytes) > i {
			set[p.bytes[i]|0x20] = true
		}
	}
	return set
}

var accessorHeadBytes = [3][256]bool{headBytes(0), headBytes(1), headBytes(2)}

var (
	jsonParse  = []byte("JSON.parse")
	submitCall = []byte("submit(")
)
