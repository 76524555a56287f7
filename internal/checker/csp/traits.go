package csp

import "strings"

// SourceInfo summarizes the sources of one directive for reporting.
type SourceInfo struct {
	URLCount            int  `json:"url_count"`
	HasHTTP             bool `json:"has_http"`
	HasHTTPButLocalhost bool `json:"has_http_but_localhost"`
	HasWildcard         bool `json:"has_wildcard"`
	OnlySelf            bool `json:"only_self"`
}

// SourceTraits computes SourceInfo for every directive in p.
func SourceTraits(p *Policy) map[string]SourceInfo {
	out := make(map[string]SourceInfo)
	if p == nil {
		return out
	}
	for _, d := range p.Directives {
		var info SourceInfo
		var keywords []string
		for _, v := range d.Values {
			lower := strings.ToLower(v.Raw)
			switch v.Type {
			case ValueSource, ValueWildcard:
				info.URLCount++
				if strings.HasPrefix(lower, "*") {
					info.HasWildcard = true
				}
				if strings.HasPrefix(lower, SchemeHTTP) {
					if strings.HasPrefix(lower, "http://localhost:") || strings.HasPrefix(lower, "http://127.") {
						info.HasHTTPButLocalhost = true
					} else {
						info.HasHTTP = true
					}
				}
			case ValueKeyword:
				keywords = append(keywords, lower)
			}
		}
		info.OnlySelf = info.URLCount == 0 && len(keywords) == 1 && keywords[0] == KeywordSelf
		out[d.Name] = info
	}
	return out
}
