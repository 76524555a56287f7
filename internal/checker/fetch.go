package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
	"go.uber.org/zap"
)

// HTTPFetcher downloads pages for analysis with a capped body size.
type HTTPFetcher struct {
	Timeout      time.Duration
	MaxBodyBytes int
	UserAgent    string
	Logger       *zap.SugaredLogger

	// Client overrides the default client, mostly for tests.
	Client *http.Client

	once   sync.Once
	pooled *http.Client
}

// client returns the override or a client built once per fetcher so that
// connections are pooled across fetches.
func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	f.once.Do(func() {
		timeout := f.Timeout
		if timeout <= 0 {
			timeout = consts.DefaultFetchTimeout
		}
		f.pooled = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: false,
					MinVersion:         tls.VersionTLS12,
				},
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return f.pooled
}

func (f *HTTPFetcher) logger() *zap.SugaredLogger {
	if f.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return f.Logger
}

// Fetch GETs target and returns the response as a Page. The origin of the page
// is the final URL after redirects.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) (Page, error) {
	if strings.TrimSpace(target) == "" {
		return Page{}, serrors.ErrEmptyTarget
	}
	info := ParseTarget(target)
	if info.Host == "" {
		return Page{}, fmt.Errorf("%w: %q", serrors.ErrInvalidTarget, target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.FullURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%w: create request: %v", serrors.ErrFetchFailed, err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = consts.DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	log := f.logger()
	log.Debugw("fetching page", "target", info.FullURL)
	resp, err := f.client().Do(req)
	if err != nil {
		log.Debugw("fetch failed", "target", info.FullURL, "error", err)
		return Page{}, fmt.Errorf("%w: %w", serrors.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = consts.DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return Page{}, fmt.Errorf("%w: read body: %v", serrors.ErrFetchFailed, err)
	}
	truncated := len(body) > limit
	if truncated {
		body = body[:limit]
	}

	origin := info.FullURL
	if resp.Request != nil && resp.Request.URL != nil {
		origin = resp.Request.URL.String()
	}
	log.Debugw("page fetched", "origin", origin, "status", resp.StatusCode, "bytes", len(body), "truncated", truncated)

	return Page{
		Body:      body,
		Truncated: truncated,
		Headers:   LowerHeaders(resp.Header),
		Origin:    origin,
		Status:    resp.StatusCode,
	}, nil
}

// LowerHeaders flattens h into lowercase names, joining repeated values with ", ".
func LowerHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}
