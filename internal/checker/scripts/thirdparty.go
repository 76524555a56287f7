package scripts

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ThirdPartySites returns the registrable domains (eTLD+1) of external scripts
// that differ from the origin's own registrable domain, sorted and deduplicated.
func ThirdPartySites(res *Result, origin string) []string {
	if res == nil {
		return nil
	}
	base := parseOrigin(origin)
	if base == nil {
		return nil
	}
	own := registrableDomain(base.Hostname())

	seen := make(map[string]struct{})
	var sites []string
	for i := range res.Targets {
		t := &res.Targets[i]
		if !t.Origin.IsExternal() || t.Src == "" {
			continue
		}
		resolved := resolveScriptURL(t.Src, base)
		if resolved == nil || resolved.Hostname() == "" {
			continue
		}
		site := registrableDomain(resolved.Hostname())
		if site == "" || site == own {
			continue
		}
		if _, ok := seen[site]; ok {
			continue
		}
		seen[site] = struct{}{}
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites
}

func parseOrigin(origin string) *url.URL {
	if origin == "" {
		return nil
	}
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return u
}

func resolveScriptURL(src string, base *url.URL) *url.URL {
	if strings.HasPrefix(src, "//") {
		src = base.Scheme + ":" + src
	}
	u, err := base.Parse(strings.TrimSpace(src))
	if err != nil {
		return nil
	}
	return u
}

// registrableDomain falls back to the lowercase host for hosts the public
// suffix list cannot split (IP addresses, single labels).
func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}
