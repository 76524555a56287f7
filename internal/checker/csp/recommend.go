package csp

import (
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"

	"github.com/khanhnv2901/pagescope/internal/checker/scripts"
)

// Recommend builds a policy that would allow the scripts the page actually
// loads: external hosts by origin and inline bodies by SHA-256 hash.
func Recommend(body []byte, res *scripts.Result, origin string) string {
	own := ""
	if u, err := url.Parse(origin); err == nil {
		own = strings.ToLower(u.Hostname())
	}

	hostSet := make(map[string]struct{})
	var hashes []string
	seenHash := make(map[string]struct{})
	if res != nil {
		for i := range res.Targets {
			t := &res.Targets[i]
			switch {
			case t.Origin.IsExternal():
				u, ok := parseScriptURL(t.Src, origin)
				if !ok || u.host == own {
					continue
				}
				host := u.host
				if u.port != "" {
					host += ":" + u.port
				}
				hostSet["https://"+host] = struct{}{}
			case t.Origin.IsInline():
				content := t.Content(body)
				if len(strings.TrimSpace(string(content))) == 0 {
					continue
				}
				sum := sha256.Sum256(content)
				h := "'sha256-" + base64.StdEncoding.EncodeToString(sum[:]) + "'"
				if _, ok := seenHash[h]; !ok {
					seenHash[h] = struct{}{}
					hashes = append(hashes, h)
				}
			}
		}
	}

	hosts := make([]string, 0, len(hostSet))
	for h := range hostSet {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)

	script := append([]string{DirectiveScriptSrc, KeywordSelf}, hosts...)
	script = append(script, hashes...)
	return strings.Join([]string{
		DirectiveDefaultSrc + " " + KeywordSelf,
		strings.Join(script, " "),
		DirectiveObjectSrc + " " + KeywordNone,
		DirectiveBaseURI + " " + KeywordSelf,
	}, "; ")
}
