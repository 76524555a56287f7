package csp

import (
	"fmt"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// Source names where the analyzed policy came from.
type Source string

const (
	SourceHeader     Source = "CSP"
	SourceReportOnly Source = "CSP-RO"
	SourceMeta       Source = "HTTP-Equiv"
)

// Enforcing reports whether a browser enforces a policy from this source.
// Warnings about a non-enforcing policy carry no penalty.
func (s Source) Enforcing() bool {
	return s != SourceReportOnly
}

func (s Source) penalty(p int) int {
	if !s.Enforcing() {
		return 0
	}
	return p
}

// Warning bits carried on CSP warnings.
const (
	BitUnsafeInline uint32 = 1 << iota
	BitUnsafeInlineContained
	BitUnsafeEval
	BitWildcard
	BitFakeCSP
	BitTrustedTypes
	BitIncorrectLogic
	BitMissingCSP
	BitReportOnly
)

// AnalyzeMisconfig applies the dangerous-combination rules to script-src,
// falling back to default-src. Each rule emits at most one warning.
func AnalyzeMisconfig(ctx *analysis.Context, p *Policy, flags map[string]Flags, src Source) {
	d := p.ScriptDirective()
	if d == nil {
		return
	}
	f := flags[d.Name]
	add := func(sev analysis.Severity, penalty int, bits uint32, msg string) {
		ctx.Add(analysis.Warning{
			Message:  msg,
			Severity: sev,
			Penalty:  src.penalty(penalty),
			Source:   analysis.SourceHeader,
			Flags:    bits,
		})
	}

	if f.Has(FlagUnsafeInline) {
		switch {
		case f.Has(FlagStrictDynamic | FlagHasNonce):
			add(analysis.SeveritySuspicious, consts.PenaltyUnsafeInlineNonce, BitUnsafeInlineContained,
				fmt.Sprintf("'unsafe-inline' present with strict-dynamic and nonce in %s: contained but still risky.", d.Name))
		case f.Has(FlagHasNonce):
			add(analysis.SeveritySuspicious, consts.PenaltyUnsafeInlineNonce, BitUnsafeInlineContained,
				fmt.Sprintf("'unsafe-inline' present with nonce in %s: partially contained.", d.Name))
		case f.Has(FlagHasHash):
			add(analysis.SeveritySuspicious, consts.PenaltyUnsafeInlineHash, BitUnsafeInlineContained,
				fmt.Sprintf("'unsafe-inline' present with script hashes in %s: partially hardened.", d.Name))
		default:
			add(analysis.SeverityDangerous, consts.PenaltyUnsafeInline, BitUnsafeInline,
				fmt.Sprintf("'unsafe-inline' present in %s: freely allowed.", d.Name))
		}
	}

	if f.Has(FlagUnsafeEval) {
		if f.Any(FlagHasNonce | FlagHasHash) {
			add(analysis.SeveritySuspicious, consts.PenaltyUnsafeEvalContained, BitUnsafeEval,
				fmt.Sprintf("'unsafe-eval' present with nonce or hash in %s: partially contained but still dangerous.", d.Name))
		} else {
			add(analysis.SeverityDangerous, consts.PenaltyUnsafeEval, BitUnsafeEval,
				fmt.Sprintf("'unsafe-eval' present in %s: dangerous execution allowed.", d.Name))
		}
	}

	if f.Has(FlagWildcard) {
		if f.Has(FlagStrictDynamic) && f.Any(FlagHasNonce|FlagHasHash) {
			add(analysis.SeveritySuspicious, consts.PenaltyWildcardStrictDyn, BitWildcard,
				fmt.Sprintf("Wildcard (*) detected with strict-dynamic and nonce/hash in %s: partially contained but still risky.", d.Name))
		} else {
			add(analysis.SeverityDangerous, consts.PenaltyWildcard, BitWildcard,
				fmt.Sprintf("Wildcard (*) detected in directive: %s: allows scripts from any origin.", d.Name))
		}
	}

	if f.Has(FlagNone) && f.Any(FlagUnsafeInline|FlagUnsafeEval|FlagAllowsHTTPS|FlagAllowsBlob|FlagAllowsData|FlagAllowsSelf) {
		add(analysis.SeveritySuspicious, consts.PenaltyNoneConflict, BitIncorrectLogic,
			fmt.Sprintf("'none' used alongside other sources in %s: CSP conflict.", d.Name))
	}
}

// EvaluateCoverage checks that the policy restricts scripts at all, and
// rewards or flags a Trusted Types requirement.
func EvaluateCoverage(ctx *analysis.Context, p *Policy, src Source) {
	hasDefault := p.Has(DirectiveDefaultSrc)
	hasScript := p.Has(DirectiveScriptSrc)
	hasObject := p.Has(DirectiveObjectSrc)
	trusted := p.Get(DirectiveRequireTrustedType)

	switch {
	case trusted == nil && !hasDefault && !(hasScript && hasObject):
		ctx.Add(analysis.Warning{
			Message:        "CSP is missing both 'default-src' and a critical combination of 'script-src' and 'object-src'.",
			Severity:       analysis.SeverityDangerous,
			Penalty:        src.penalty(consts.PenaltyFakeCSP),
			Source:         analysis.SourceHeader,
			Flags:          BitFakeCSP,
			MachineMessage: "csp_incomplete",
		})
	case trusted != nil && trusted.Has(KeywordScript):
		ctx.Add(analysis.Warning{
			Message:  "Modern CSP: Trusted Types enforced for scripts.",
			Severity: analysis.SeverityInfo,
			Penalty:  src.penalty(consts.PenaltyTrustedTypes),
			Source:   analysis.SourceHeader,
			Flags:    BitTrustedTypes,
		})
	case trusted != nil:
		ctx.Add(analysis.Warning{
			Message:  "CSP 'require-trusted-types-for' directive found but missing 'script' value. Potential misconfiguration.",
			Severity: analysis.SeveritySuspicious,
			Penalty:  src.penalty(consts.PenaltyTrustedTypesMisconfig),
			Source:   analysis.SourceHeader,
			Flags:    BitFakeCSP,
		})
	}
}

// AnalyzeConfig reports illogical source combinations in script-src and
// default-src. These are informational only.
func AnalyzeConfig(ctx *analysis.Context, flags map[string]Flags) {
	for _, name := range []string{DirectiveDefaultSrc, DirectiveScriptSrc} {
		f, ok := flags[name]
		if !ok {
			continue
		}
		if f.Has(FlagWildcard) && f.Any(FlagAllowsHTTP|FlagAllowsHTTPS) {
			ctx.Add(analysis.Warning{
				Message:  fmt.Sprintf("Directive '%s' allows both wildcard and HTTP sources.", name),
				Severity: analysis.SeverityInfo,
				Penalty:  consts.PenaltyInformational,
				Source:   analysis.SourceHeader,
				Flags:    BitIncorrectLogic,
			})
		}
		if f.Has(FlagAllowsSelf | FlagWildcard) {
			ctx.Add(analysis.Warning{
				Message:  fmt.Sprintf("Directive '%s' includes both 'self' and wildcard (*).", name),
				Severity: analysis.SeverityInfo,
				Penalty:  consts.PenaltyInformational,
				Source:   analysis.SourceHeader,
				Flags:    BitIncorrectLogic,
			})
		}
	}
}
