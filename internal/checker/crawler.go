package checker

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// CrawlOptions configures discovery of same-site pages to analyze.
type CrawlOptions struct {
	MaxDepth     int
	MaxPages     int
	SameHostOnly bool
}

var assetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".mjs": {}, ".json": {}, ".map": {}, ".txt": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".webmanifest": {}, ".mp4": {}, ".mp3": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".pdf": {}, ".zip": {}, ".tar": {},
}

// DiscoverPages walks <a href> links breadth-first from startURL and returns up
// to MaxPages page URLs found within MaxDepth hops. startURL itself is not
// included.
func DiscoverPages(ctx context.Context, fetcher *HTTPFetcher, startURL string, opts CrawlOptions) ([]string, error) {
	if opts.MaxDepth <= 0 || opts.MaxPages <= 0 {
		return nil, nil
	}
	target := ParseTarget(startURL)
	if target.FullURL == "" {
		return nil, fmt.Errorf("invalid start url %q", startURL)
	}
	root, err := url.Parse(target.FullURL)
	if err != nil {
		return nil, err
	}

	type queueItem struct {
		url   *url.URL
		depth int
	}
	queue := []queueItem{{url: root}}
	seen := map[string]struct{}{canonicalURL(root): {}}
	discovered := make([]string, 0, opts.MaxPages)

	for len(queue) > 0 && len(discovered) < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		item := queue[0]
		queue = queue[1:]
		if item.depth >= opts.MaxDepth {
			continue
		}

		page, err := fetcher.Fetch(ctx, item.url.String())
		if err != nil || page.Status < 200 || page.Status >= 400 || !isHTML(page.Headers["content-type"]) {
			continue
		}

		for _, u := range extractLinks(item.url, page.Body) {
			if opts.SameHostOnly && !hostsMatch(root, u) {
				continue
			}
			if looksLikeAsset(u.Path) {
				continue
			}
			key := canonicalURL(u)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			discovered = append(discovered, key)
			if len(discovered) >= opts.MaxPages {
				break
			}
			if item.depth+1 < opts.MaxDepth {
				queue = append(queue, queueItem{url: u, depth: item.depth + 1})
			}
		}
	}
	return discovered, nil
}

// extractLinks tokenizes body and resolves every <a href> against base.
func extractLinks(base *url.URL, body []byte) []*url.URL {
	var links []*url.URL
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if u := resolveLink(base, string(val)); u != nil {
						links = append(links, u)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return nil
		}
	}

	// Hash-routed single page apps.
	switch {
	case strings.HasPrefix(href, "#/"):
		return &url.URL{Scheme: base.Scheme, Host: base.Host, Path: ensureLeadingSlash(href[1:])}
	case strings.HasPrefix(href, "/#/"):
		return &url.URL{Scheme: base.Scheme, Host: base.Host, Path: ensureLeadingSlash(href[2:])}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	ref = base.ResolveReference(ref)
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil
	}
	if strings.HasPrefix(ref.Fragment, "/") {
		ref.Path = ref.Fragment
	}
	ref.Fragment = ""
	if ref.Path == "" {
		ref.Path = "/"
	}
	return ref
}

func ensureLeadingSlash(p string) string {
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

func canonicalURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

func hostsMatch(a, b *url.URL) bool {
	return a.Hostname() != "" && strings.EqualFold(a.Hostname(), b.Hostname())
}

func looksLikeAsset(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, blocked := assetExtensions[ext]
	return blocked
}
