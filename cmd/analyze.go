package cmd

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/khanhnv2901/pagescope/internal/checker"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"github.com/spf13/cobra"
)

const (
	jsonPrefix = ""
	jsonIndent = "  "
)

// RunMetadata describes one analyze run.
type RunMetadata struct {
	RunID        string    `json:"run_id"`
	StartAt      time.Time `json:"started_at"`
	CompleteAt   time.Time `json:"completed_at"`
	TotalTargets int       `json:"total_targets"`
	UserAgent    string    `json:"user_agent"`
	CrawlDepth   int       `json:"crawl_depth,omitempty"`
	Cancelled    bool      `json:"cancelled,omitempty"`
}

// RunOutput is the on-disk form of a run, stored as <results>/<run-id>/results.json.
type RunOutput struct {
	Metadata RunMetadata           `json:"metadata"`
	Results  []checker.CheckResult `json:"results"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [url...]",
	Short: "Fetch pages and analyze their scripts and Content-Security-Policy",
	Long: `Fetch one or more pages, extract their scripts and analyze inline code,
script origins and the Content-Security-Policy. Results are printed and saved
under the results directory so they can be rendered later with "report".`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	appCtx := getAppContext(cmd)
	cfg := appCtx.Config
	out := cmd.OutOrStdout()

	targetsFile, _ := cmd.Flags().GetString("targets-file")
	retries, _ := cmd.Flags().GetInt("retries")
	noSave, _ := cmd.Flags().GetBool("no-save")

	targets := append([]string(nil), args...)
	if targetsFile != "" {
		fromFile, err := readTargetsFile(targetsFile)
		if err != nil {
			return err
		}
		targets = append(targets, fromFile...)
	}
	targets = dedupeTargets(targets)
	if len(targets) == 0 {
		return fmt.Errorf("at least one URL is required (pass it as an argument or via --targets-file)")
	}

	minSeverity, err := parseMinSeverity(cfg.Fetch.MinSeverity)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s Received %s, finalizing partial results...\n", colorWarn("!"), sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	fetcher := &checker.HTTPFetcher{
		Timeout:      cfg.Fetch.Timeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
		Logger:       appCtx.Logger,
	}
	targets = expandTargetsWithCrawl(ctx, appCtx, fetcher, targets)

	chk := &checker.PageChecker{Fetcher: fetcher, Logger: appCtx.Logger}
	runner := &checker.Runner{
		Concurrency: cfg.Fetch.Concurrency,
		RateLimit:   cfg.Fetch.RateLimit,
		Timeout:     cfg.Fetch.Timeout(),
		Logger:      appCtx.Logger,
	}

	var resultFn checker.ResultFunc
	var progress *pageProgress
	if cfg.Fetch.ProgressEnabled && outputFormat != "json" {
		progress = newPageProgress(cmd.ErrOrStderr(), len(targets), chk.Name())
		progress.Start()
		resultFn = func(target string, result checker.CheckResult, duration float64) error {
			progress.Record(result)
			return nil
		}
	}

	startAll := time.Now().UTC()
	results := runWithRetries(ctx, runner, chk, targets, resultFn, retries, cmd.ErrOrStderr())
	if progress != nil {
		progress.Stop()
	}

	metadata := RunMetadata{
		RunID:      uuid.NewString(),
		StartAt:    startAll,
		UserAgent:  cfg.Fetch.UserAgent,
		CrawlDepth: cfg.Crawl.MaxDepth,
		Cancelled:  ctx.Err() != nil,
	}
	output := RunOutput{Metadata: metadata, Results: results}
	output.Metadata.CompleteAt = time.Now().UTC()
	output.Metadata.TotalTargets = len(results)

	if err := renderRun(out, &output, outputFormat, minSeverity); err != nil {
		return err
	}

	if noSave {
		return failedRunError(results)
	}
	resultsPath, resultsHash, err := writeRunOutput(appCtx, &output)
	if err != nil {
		return err
	}
	appCtx.Logger.Infof("saved run %s to %s", output.Metadata.RunID, resultsPath)
	if outputFormat != "json" {
		fmt.Fprintf(out, "\nRun ID:       %s\n", output.Metadata.RunID)
		fmt.Fprintf(out, "Results:      %s\n", resultsPath)
		fmt.Fprintf(out, "SHA256:       %s\n", resultsHash)
	}
	return failedRunError(results)
}

// failedRunError reports a run in which no target could be fetched.
func failedRunError(results []checker.CheckResult) error {
	for _, r := range results {
		if r.Status == "ok" {
			return nil
		}
	}
	if len(results) == 0 {
		return nil
	}
	first := results[0]
	return &FetchError{Target: first.Target, Err: errors.New(first.Error)}
}

// runWithRetries re-runs failed targets up to retries more times, keeping the
// original target order in the final results.
func runWithRetries(ctx context.Context, runner *checker.Runner, chk checker.Checker, targets []string, resultFn checker.ResultFunc, retries int, log io.Writer) []checker.CheckResult {
	maxAttempts := retries + 1
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	pending := append([]string(nil), targets...)
	final := make(map[string]checker.CheckResult, len(targets))

	for attempt := 1; attempt <= maxAttempts && len(pending) > 0; attempt++ {
		attemptResults := runner.RunChecks(ctx, pending, chk, resultFn)

		next := make([]string, 0)
		for _, res := range attemptResults {
			final[res.Target] = res
			if ctx.Err() == nil && res.Status != "ok" && attempt < maxAttempts {
				next = append(next, res.Target)
			}
		}
		if ctx.Err() != nil {
			break
		}
		if len(next) > 0 {
			fmt.Fprintf(log, "%s retrying %d target(s) (attempt %d/%d)\n", colorWarn("Retrying"), len(next), attempt+1, maxAttempts)
		}
		pending = next
	}

	results := make([]checker.CheckResult, 0, len(final))
	for _, target := range targets {
		if res, ok := final[target]; ok {
			results = append(results, res)
		}
	}
	return results
}

func expandTargetsWithCrawl(ctx context.Context, appCtx *AppContext, fetcher *checker.HTTPFetcher, targets []string) []string {
	crawl := appCtx.Config.Crawl
	if crawl.MaxDepth <= 0 {
		return targets
	}

	expanded := append([]string(nil), targets...)
	for _, target := range targets {
		pages, err := checker.DiscoverPages(ctx, fetcher, checker.NormalizeTarget(target), checker.CrawlOptions{
			MaxDepth:     crawl.MaxDepth,
			MaxPages:     crawl.MaxPages,
			SameHostOnly: true,
		})
		if err != nil {
			appCtx.Logger.Warnf("crawl %s failed: %v", target, err)
			continue
		}
		appCtx.Logger.Debugf("crawl %s discovered %d page(s)", target, len(pages))
		expanded = append(expanded, pages...)
	}
	return dedupeTargets(expanded)
}

func writeRunOutput(appCtx *AppContext, output *RunOutput) (string, string, error) {
	if err := ensureResultsRoot(appCtx); err != nil {
		return "", "", err
	}
	if _, err := ensureRunDir(appCtx.ResultsDir, output.Metadata.RunID); err != nil {
		return "", "", err
	}
	resultsPath, err := resolveResultsPath(appCtx.ResultsDir, output.Metadata.RunID, resultsFileName)
	if err != nil {
		return "", "", fmt.Errorf("resolve results path: %w", err)
	}

	b, err := json.MarshalIndent(output, jsonPrefix, jsonIndent)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := writeFileAtomic(resultsPath, b); err != nil {
		return "", "", fmt.Errorf("failed to write results: %w", err)
	}

	sum := sha256.Sum256(b)
	hash := hex.EncodeToString(sum[:])
	line := fmt.Sprintf("%s  %s\n", hash, filepath.Base(resultsPath))
	if err := os.WriteFile(resultsPath+".sha256", []byte(line), consts.DefaultFilePerm); err != nil {
		return "", "", fmt.Errorf("failed to write results hash: %w", err)
	}
	return resultsPath, hash, nil
}

func readTargetsFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	return targets, nil
}

func dedupeTargets(targets []string) []string {
	seen := make(map[string]struct{}, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := checker.NormalizeTarget(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

func parseMinSeverity(value string) (analysis.Severity, error) {
	if value == "" {
		return analysis.SeverityGood, nil
	}
	s, ok := analysis.ParseSeverity(value)
	if !ok {
		return "", fmt.Errorf("invalid --min-severity %q", value)
	}
	return s, nil
}

func init() {
	f := analyzeCmd.Flags()
	f.IntVar(&cliConfig.Fetch.Concurrency, "concurrency", cliConfig.Fetch.Concurrency, "max concurrent page fetches")
	f.IntVar(&cliConfig.Fetch.RateLimit, "rate", cliConfig.Fetch.RateLimit, "max requests per second across workers (0 for unlimited)")
	f.IntVar(&cliConfig.Fetch.TimeoutSecs, "timeout", cliConfig.Fetch.TimeoutSecs, "per-page timeout in seconds")
	f.IntVar(&cliConfig.Fetch.MaxBodyBytes, "max-body", cliConfig.Fetch.MaxBodyBytes, "max bytes of page body to analyze")
	f.StringVar(&cliConfig.Fetch.UserAgent, "user-agent", cliConfig.Fetch.UserAgent, "User-Agent header for requests")
	f.StringVar(&cliConfig.Fetch.MinSeverity, "min-severity", "", "only print warnings at or above this severity")
	f.BoolVar(&cliConfig.Fetch.ProgressEnabled, "progress", false, "show live progress while analyzing")
	f.IntVar(&cliConfig.Crawl.MaxDepth, "crawl-depth", cliConfig.Crawl.MaxDepth, "follow same-site links up to this depth (0 disables crawling)")
	f.IntVar(&cliConfig.Crawl.MaxPages, "max-pages", cliConfig.Crawl.MaxPages, "max pages discovered per start URL when crawling")
	f.String("targets-file", "", "file with one URL per line (# comments allowed)")
	f.Int("retries", 0, "retry failed fetches this many times")
	f.Bool("no-save", false, "do not write results to the results directory")
}
