package csp

// Directive names.
const (
	DirectiveDefaultSrc         = "default-src"
	DirectiveScriptSrc          = "script-src"
	DirectiveObjectSrc          = "object-src"
	DirectiveBaseURI            = "base-uri"
	DirectiveRequireTrustedType = "require-trusted-types-for"
)

// knownDirectives lists the directive names recognized without a warning.
var knownDirectives = map[string]struct{}{
	"default-src": {}, "script-src": {}, "script-src-elem": {}, "script-src-attr": {},
	"style-src": {}, "style-src-elem": {}, "style-src-attr": {}, "img-src": {},
	"connect-src": {}, "font-src": {}, "object-src": {}, "media-src": {},
	"frame-src": {}, "child-src": {}, "worker-src": {}, "manifest-src": {},
	"prefetch-src": {}, "form-action": {}, "navigate-to": {}, "base-uri": {},
	"sandbox": {}, "frame-ancestors": {}, "report-uri": {}, "report-to": {},
	"require-trusted-types-for": {}, "trusted-types": {}, "upgrade-insecure-requests": {},
	"block-all-mixed-content": {}, "plugin-types": {}, "fenced-frame-src": {},
	"webrtc": {}, "require-sri-for": {},
}

// Keyword and scheme source expressions, compared in lowercase.
const (
	KeywordUnsafeInline   = "'unsafe-inline'"
	KeywordUnsafeEval     = "'unsafe-eval'"
	KeywordWasmUnsafeEval = "'wasm-unsafe-eval'"
	KeywordUnsafeHashes   = "'unsafe-hashes'"
	KeywordSelf           = "'self'"
	KeywordNone           = "'none'"
	KeywordStrictDynamic  = "'strict-dynamic'"
	KeywordReportSample   = "'report-sample'"
	KeywordScript         = "'script'"

	SchemeData  = "data:"
	SchemeBlob  = "blob:"
	SchemeHTTP  = "http:"
	SchemeHTTPS = "https:"
	Wildcard    = "*"

	prefixNonce  = "'nonce-"
	prefixSHA256 = "'sha256-"
	prefixSHA384 = "'sha384-"
	prefixSHA512 = "'sha512-"
)

var hashPrefixes = []string{prefixSHA256, prefixSHA384, prefixSHA512}
