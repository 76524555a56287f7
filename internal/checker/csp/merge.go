package csp

import (
	"strings"

	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

// Merge folds a <meta http-equiv> policy into the header policy. A meta
// directive missing from the header is added. A directive present in both is
// merged only when the meta lists no more values than the header, since more
// sources means a more permissive rule. The header policy is not modified.
func Merge(ctx *analysis.Context, header, meta *Policy) *Policy {
	merged := &Policy{}
	if header != nil {
		for _, d := range header.Directives {
			merged.Directives = append(merged.Directives, Directive{
				Name:   d.Name,
				Values: append([]Value(nil), d.Values...),
			})
		}
	}
	if meta.Empty() {
		return merged
	}

	var added, joined []string
	for _, md := range meta.Directives {
		if len(md.Values) == 0 {
			continue
		}
		hd := merged.Get(md.Name)
		if hd == nil {
			merged.Directives = append(merged.Directives, Directive{
				Name:   md.Name,
				Values: append([]Value(nil), md.Values...),
			})
			added = append(added, md.Name)
			continue
		}
		if len(md.Values) > len(hd.Values) {
			ctx.Add(analysis.Warning{
				Message:  "CSP directive '" + md.Name + "' from <meta http-equiv> is more permissive than the header, ignored.",
				Severity: analysis.SeverityInfo,
				Penalty:  consts.PenaltyInformational,
				Source:   analysis.SourceHeader,
			})
			continue
		}
		changed := false
		for _, v := range md.Values {
			if hd.add(v) {
				changed = true
			}
		}
		if changed {
			joined = append(joined, md.Name)
		}
	}

	if len(added) > 0 {
		ctx.Add(analysis.Warning{
			Message:  "CSP directives added from <meta http-equiv>: " + strings.Join(added, ", "),
			Severity: analysis.SeverityInfo,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceHeader,
		})
	}
	if len(joined) > 0 {
		ctx.Add(analysis.Warning{
			Message:  "CSP directives merged with <meta http-equiv>: " + strings.Join(joined, ", "),
			Severity: analysis.SeverityInfo,
			Penalty:  consts.PenaltyInformational,
			Source:   analysis.SourceHeader,
		})
	}
	return merged
}
