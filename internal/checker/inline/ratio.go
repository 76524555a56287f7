package inline

import (
	"fmt"

	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// InlinePercent is the share of the HTML range taken by inline script bodies.
func InlinePercent(res *scripts.Result) int {
	size := res.HTMLSize()
	if size <= 0 {
		return 0
	}
	total := 0
	for i := range res.Targets {
		if res.Targets[i].Origin.IsInline() {
			total += contentLen(&res.Targets[i])
		}
	}
	return total * 100 / size
}

// AnalyzeRatio scores the inline-script to HTML ratio and the script density.
// Small documents are held to a stricter ratio: the small-HTML bonus deepens
// the penalty.
func AnalyzeRatio(ctx *analysis.Context, res *scripts.Result) {
	if res == nil {
		return
	}
	size := res.HTMLSize()
	if size <= 0 {
		return
	}
	analyzeInlineRatio(ctx, size, InlinePercent(res))
	analyzeDensity(ctx, size, res.Count(scripts.OriginRelative)+res.Count(scripts.OriginHTTPSExternal))
}

func analyzeInlineRatio(ctx *analysis.Context, size, percent int) {
	bonus := 0
	switch {
	case size < consts.SmallHTMLBytes:
		bonus = consts.SmallHTMLBonus
	case size < consts.MediumHTMLBytes:
		bonus = consts.MediumHTMLBonus
	}

	w := analysis.Warning{Source: analysis.SourceBody, Flags: BitHighRatio}
	switch {
	case size < consts.SmallHTMLBytes && percent >= consts.RatioSuspectPercent:
		w.Message = "This page relies almost entirely on JavaScript to function, yet contains no visible content or fallback for non-JS environments. This is highly indicative of cloaked content or malicious redirection."
		w.Severity = analysis.SeverityCritical
		w.Penalty = consts.PenaltyScriptRatio70 - bonus
	case percent >= consts.RatioDangerPercent:
		w.Message = fmt.Sprintf("Inline JS makes up %d%% of the HTML. This is highly suspicious and may indicate obfuscation or cloaking.", percent)
		w.Severity = analysis.SeverityDangerous
		w.Penalty = consts.PenaltyScriptRatio70 - bonus
	case percent >= consts.RatioSuspectPercent:
		w.Message = fmt.Sprintf("Inline JS dominates %d%% of the HTML content. This suggests heavy client-side scripting.", percent)
		w.Severity = analysis.SeveritySuspicious
		w.Penalty = consts.PenaltyScriptRatio5070 - bonus
	case percent >= consts.RatioInfoPercent:
		w.Message = fmt.Sprintf("Inline JS makes up %d%% of the HTML content. This may indicate excessive inline scripting.", percent)
		w.Severity = analysis.SeverityInfo
		w.Penalty = consts.PenaltyInformational
	default:
		return
	}
	ctx.Add(w)
}

func analyzeDensity(ctx *analysis.Context, size, count int) {
	if count >= consts.DenseScriptCount && size >= consts.DenseHTMLBytes {
		ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("This page includes %d script tags and over 1MB of HTML content. This is highly abnormal and may indicate a script payload (cloaking kit or obfuscated attack).", count),
			Severity: analysis.SeverityCritical,
			Penalty:  consts.PenaltyCritical,
			Source:   analysis.SourceBody,
			Flags:    BitLargePage,
		})
	}

	density := float64(count) / float64(size) * 1000
	w := analysis.Warning{Source: analysis.SourceBody, Flags: BitHighDensity}
	switch {
	case density >= consts.DensityDanger:
		w.Message = fmt.Sprintf("High script density detected (%.3f) script per 1000 bytes. This is abnormal and may signal obfuscation or cloaked logic.", density)
		w.Severity = analysis.SeverityDangerous
		w.Penalty = consts.PenaltyDensityHigh
	case density >= consts.DensitySuspect:
		w.Message = fmt.Sprintf("Script density is %.3f script per 1000 bytes. This could indicate heavy client-side logic or potential cloaking.", density)
		w.Severity = analysis.SeveritySuspicious
		w.Penalty = consts.PenaltyDensityMedium
	case density >= consts.DensityInfo:
		w.Message = fmt.Sprintf("Script density is %.3f script per 1000 bytes. This may be typical of apps using moderate scripting.", density)
		w.Severity = analysis.SeverityInfo
		w.Penalty = consts.PenaltyInformational
	default:
		return
	}
	ctx.Add(w)
}

// AnalyzeOrigins flags scripts whose origin is insecure, opaque or broken,
// and summarizes data: and protocol-relative scripts.
func AnalyzeOrigins(ctx *analysis.Context, res *scripts.Result) {
	if res == nil {
		return
	}
	var dataURI, protoRel, protoRelSRI int
	for i := range res.Targets {
		t := &res.Targets[i]
		switch t.Origin {
		case scripts.OriginHTTPExternal, scripts.OriginModuleExternal:
			if !hasPrefixFold(t.Src, "http://") {
				continue
			}
			t.AddFinding(analysis.SeverityCritical, "HTTP script detected")
			ctx.Add(analysis.Warning{
				Message:  "External script loaded over HTTP. This is insecure and exposes users to injection risks.",
				Severity: analysis.SeverityCritical,
				Penalty:  consts.PenaltyCritical,
				Source:   analysis.SourceBody,
			})
		case scripts.OriginProtocolRelative:
			if t.Integrity != "" {
				t.AddFinding(analysis.SeverityInfo, "Protocol relative (with SRI)")
				protoRelSRI++
			} else {
				t.AddFinding(analysis.SeveritySuspicious, "Protocol relative")
				protoRel++
			}
		case scripts.OriginDataURI:
			t.AddFinding(analysis.SeverityDangerous, "Data URI script detected")
			if t.Nonce != "" {
				t.AddFinding(analysis.SeveritySuspicious, "'nonce' attribute does not work for DATA URI it is for Inline Scripts")
			}
			dataURI++
		case scripts.OriginUnknown:
			t.AddFinding(analysis.SeverityDangerous, "Script origin unknown")
			ctx.Add(analysis.Warning{
				Message:  "Script origin could not be determined. This may indicate cloaking or malformed attributes.",
				Severity: analysis.SeverityDangerous,
				Penalty:  consts.PenaltyScriptUnknownOrigin,
				Source:   analysis.SourceBody,
				Flags:    BitUnknownOrigin,
			})
		case scripts.OriginMalformed:
			t.AddFinding(analysis.SeveritySuspicious, "Script is malformed")
			ctx.Add(analysis.Warning{
				Message:  "Malformed script tag or broken src attribute detected.",
				Severity: analysis.SeveritySuspicious,
				Penalty:  consts.PenaltyScriptMalformed,
				Source:   analysis.SourceBody,
				Flags:    BitUnknownOrigin,
			})
		}
	}

	if dataURI > 0 {
		ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("This page includes %d script(s) using data: URIs. These are often used for obfuscation or tracking.", dataURI),
			Severity: analysis.SeveritySuspicious,
			Penalty:  consts.PenaltyScriptDataURI,
			Source:   analysis.SourceBody,
			Flags:    BitDataURI,
		})
	}
	if protoRel > 0 {
		ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("This page includes %d script(s) using protocol-relative URLs. These rely on the current protocol and can lead to mixed content issues.", protoRel),
			Severity: analysis.SeveritySuspicious,
			Penalty:  consts.PenaltyProtocolRelativeNoSRI,
			Source:   analysis.SourceBody,
			Flags:    BitProtocolRelative,
		})
	}
	if protoRelSRI > 0 {
		ctx.Add(analysis.Warning{
			Message:  fmt.Sprintf("This page includes %d script(s) using protocol-relative URLs with integrity attributes. Their correctness was not verified.", protoRelSRI),
			Severity: analysis.SeverityInfo,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceBody,
			Flags:    BitProtocolRelative,
		})
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		if s[i]|0x20 != prefix[i]|0x20 {
			return false
		}
	}
	return true
}
