package checker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// CheckResult represents the result of analyzing a single target
type CheckResult struct {
	Target       string      `json:"target"`
	CheckedAt    time.Time   `json:"checked_at"`
	Status       string      `json:"status"`
	HTTPStatus   int         `json:"http_status,omitempty"`
	ResponseTime float64     `json:"response_time_ms,omitempty"`
	Report       *PageReport `json:"report,omitempty"`
	Error        string      `json:"error,omitempty"`

	index int
}

// Checker is the interface that all check implementations must satisfy
type Checker interface {
	// Check performs the actual check logic for a single target
	Check(ctx context.Context, target string) CheckResult

	// Name returns the name of this checker (e.g., "analyze page")
	Name() string
}

// ResultFunc is called once per finished target, from the worker goroutine.
type ResultFunc func(target string, result CheckResult, duration float64) error

// Runner orchestrates the execution of checks with concurrency and rate limiting
type Runner struct {
	Concurrency int           // Maximum number of concurrent checks
	RateLimit   int           // Requests per second (global)
	Timeout     time.Duration // Timeout for each check
	Logger      *zap.SugaredLogger
}

// RunChecks executes checks against multiple targets using a worker pool.
// Results come back in the order of targets.
func (r *Runner) RunChecks(ctx context.Context, targets []string, checker Checker, resultFn ResultFunc) []CheckResult {
	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if r.RateLimit > 0 {
		limit = rate.Limit(r.RateLimit)
	}
	limiter := rate.NewLimiter(limit, max(r.RateLimit, 1))
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = consts.DefaultFetchTimeout
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	// Worker pool
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	mu := sync.Mutex{}
	results := make([]CheckResult, 0, len(targets))

	for i, target := range targets {
		wg.Add(1)
		go func(i int, t string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			var result CheckResult
			if err := limiter.Wait(ctx); err != nil {
				result = CheckResult{Target: t, CheckedAt: start.UTC(), Status: "error", Error: err.Error()}
			} else {
				log.Infof("%s: %s", checker.Name(), t)
				checkCtx, cancel := context.WithTimeout(ctx, timeout)
				result = checker.Check(checkCtx, t)
				cancel()
			}
			result.index = i

			duration := time.Since(start).Seconds()
			if result.Error != "" {
				log.Warnf("%s failed: %s", t, result.Error)
			}

			if resultFn != nil {
				if err := resultFn(t, result, duration); err != nil {
					log.Warnf("result callback for %s: %v", t, err)
				}
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(i, target)
	}

	wg.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	return results
}

// PageChecker fetches a page and runs the page analysis over it.
type PageChecker struct {
	Fetcher *HTTPFetcher
	Logger  *zap.SugaredLogger
}

// Name implements Checker.
func (c *PageChecker) Name() string { return "analyze page" }

// Check implements Checker. A failed fetch yields an error result whose report
// carries a single fetch-error warning.
func (c *PageChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	result := CheckResult{Target: target, CheckedAt: start.UTC()}

	page, err := c.Fetcher.Fetch(ctx, target)
	result.ResponseTime = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		result.Status = "error"
		result.Error = err.Error()
		msg := "Page could not be fetched: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "Page could not be fetched before the timeout."
		}
		actx := analysis.NewContext(NormalizeTarget(target), c.Logger)
		actx.Add(analysis.Warning{
			Message:  msg,
			Severity: analysis.SeverityFetchError,
			Source:   analysis.SourceHeader,
		})
		result.Report = finish(actx, &PageReport{ID: uuid.NewString(), Origin: actx.URL()})
		result.Report.Grade = "-"
		return result
	}

	result.Status = "ok"
	result.HTTPStatus = page.Status
	result.Report = AnalyzePage(analysis.NewContext(page.Origin, c.Logger), page)
	return result
}
