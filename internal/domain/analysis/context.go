package analysis

import (
	"fmt"
	"net/url"
	"strings"

	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"go.uber.org/zap"
)

// Context carries the state of one page analysis: the origin being analyzed,
// the running score and the ordered warning sink.
//
// A Context is not safe for concurrent use. Analyze each URL with its own Context.
type Context struct {
	url      string
	host     string
	score    int
	warnings []Warning
	logger   *zap.SugaredLogger
}

// NewContext creates a Context for origin. A nil logger disables logging.
func NewContext(origin string, logger *zap.SugaredLogger) *Context {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Context{
		url:    origin,
		host:   hostOf(origin),
		score:  consts.StartingScore,
		logger: logger,
	}
}

// URL returns the origin the context was created for.
func (c *Context) URL() string { return c.url }

// Host returns the lowercase host of the origin, without scheme, port or path.
func (c *Context) Host() string { return c.host }

// Score returns the running score.
func (c *Context) Score() int { return c.score }

// Logger returns the context logger.
func (c *Context) Logger() *zap.SugaredLogger { return c.logger }

// Add appends w to the sink and applies its penalty to the running score.
func (c *Context) Add(w Warning) {
	if w.URL == "" {
		w.URL = c.url
	}
	if w.Source == "" {
		w.Source = SourceBody
	}
	c.score += w.Penalty
	c.warnings = append(c.warnings, w)
	c.logger.Debugw("warning",
		"url", w.URL,
		"severity", w.Severity,
		"penalty", w.Penalty,
		"source", w.Source,
		"message", w.Message,
	)
}

// Addf is a shorthand for adding a body warning with a formatted message.
func (c *Context) Addf(severity Severity, penalty int, format string, args ...interface{}) {
	c.Add(Warning{
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
		Penalty:  penalty,
		Source:   SourceBody,
	})
}

// Warnings returns a copy of the sink in insertion order.
func (c *Context) Warnings() []Warning {
	out := make([]Warning, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Len returns the number of warnings added so far.
func (c *Context) Len() int { return len(c.warnings) }

func hostOf(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return ""
	}
	if strings.Contains(origin, "://") {
		if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
			return strings.ToLower(u.Hostname())
		}
	}
	host := origin
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.ToLower(host)
}
