package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// DefaultMaxBodyBytes caps how many bytes of a response body are analyzed.
	DefaultMaxBodyBytes = 1536 * 1024
	// DefaultFetchTimeout bounds a single page fetch.
	DefaultFetchTimeout = 10 * time.Second
	// DefaultUserAgent is sent with every fetch unless overridden in config.
	DefaultUserAgent = "pagescope/1.0 (+https://github.com/khanhnv2901/pagescope)"
	// MaxLocalFileBytes caps files read by the inspect command.
	MaxLocalFileBytes = 64 << 20
)

// Scan bounds. Any lookahead that runs past its bound is reported as "not found".
const (
	// ScriptTagLookahead is how far past `<script` the closing `>` may appear.
	ScriptTagLookahead = 3072
	// AttributeValueLookahead bounds the search for an attribute's quote markers.
	AttributeValueLookahead = 64
	// TagKeywordWindow is the window in which a tag keyword must follow `<` or `</`.
	TagKeywordWindow = 8
	// HTMLEdgeWindow is searched at both ends of the body for <html> and </html>.
	HTMLEdgeWindow = 500
	// LargeBodyBytes marks a body too large for the fast scan.
	LargeBodyBytes = 4_000_000
	// MetaTagsInHead is how many tags inside <head> are examined for a meta CSP.
	MetaTagsInHead = 3
	// LargeInlineScriptBytes flags an unusually large inline script.
	LargeInlineScriptBytes = 100 * 1024
	// AtobJSONParseWindow is how far back from atob( JSON.parse is searched.
	AtobJSONParseWindow = 20
	// AutoSubmitWindow is how far after getElementById( a submit( call is searched.
	AutoSubmitWindow = 48
	// CookieSetterWindow is how far after .cookie an assignment is searched.
	CookieSetterWindow = 4
	// NonceEntropyThreshold is the minimum Shannon entropy (bits per char) of a nonce.
	NonceEntropyThreshold = 3.2
	// UnusedSourcesListed is how many unused sources are listed before the message switches to a count.
	UnusedSourcesListed = 3
)

// Ratio and density thresholds.
const (
	SmallHTMLBytes      = 896
	MediumHTMLBytes     = 1408
	SmallHTMLBonus      = 15
	MediumHTMLBonus     = 10
	DenseScriptCount    = 100
	DenseHTMLBytes      = 1_000_000
	RatioInfoPercent    = 40.0
	RatioSuspectPercent = 50.0
	RatioDangerPercent  = 70.0
	DensityInfo         = 0.05
	DensitySuspect      = 0.1
	DensityDanger       = 0.2
)

// Score penalties. Negative values lower the page score, positive values raise it.
const (
	PenaltyCritical      = -100
	PenaltyInformational = 0

	// Structure.
	PenaltyMissingBodyTag = -10
	PenaltyUnclosedHTML   = -10
	PenaltyBodyTooLarge   = -30
	PenaltyScriptUnclosed = -20

	// Script origin.
	PenaltyScriptMalformed       = -20
	PenaltyScriptUnknownOrigin   = -20
	PenaltyScriptDataURI         = -20
	PenaltyProtocolRelativeNoSRI = -5
	PenaltyCrossOriginUnknown    = -5

	// CSP.
	PenaltyMissingCSP               = -30
	PenaltyCSPReportOnly            = -20
	PenaltyFakeCSP                  = -20
	PenaltyMalformedCSP             = -5
	PenaltyDuplicateDirective       = -5
	PenaltyUnsafeInlineNonce        = -5
	PenaltyUnsafeInlineHash         = -10
	PenaltyUnsafeInline             = -30
	PenaltyUnsafeEvalContained      = -10
	PenaltyUnsafeEval               = -30
	PenaltyWildcardStrictDyn        = -10
	PenaltyWildcard                 = -30
	PenaltyNoneConflict             = -10
	PenaltyTrustedTypes             = 5
	PenaltyTrustedTypesMisconfig    = -5
	PenaltyWildcardSkip             = -1
	PenaltyInsecureSource           = -10
	PenaltyWeakNonce                = -10
	PenaltyStrictDynamicUnprotected = -5
	PenaltyRelativeWithoutSelf      = -10
	PenaltyAllScriptsNonced         = 0

	// Inline content.
	PenaltyAtobJSONParse    = -25
	PenaltyJSSetCookie      = -20
	PenaltyJSCookieAccess   = -10
	PenaltyJSStorage        = -10
	PenaltyJSSetItem        = -10
	PenaltyJSWebAssembly    = -20
	PenaltyInlineHigh       = -30
	PenaltyInlineMedium     = -15
	PenaltyInlineLow        = -5
	PenaltyInlineOver100kB  = -10
	PenaltyScriptRatio70    = -10
	PenaltyScriptRatio5070  = -5
	PenaltyDensityMedium    = -5
	PenaltyDensityHigh      = -10
	PenaltyInlineDefault    = -10
	PenaltyObfuscatedSetter = -20
)

// StartingScore is the score every page starts from before penalties apply.
const StartingScore = 100
