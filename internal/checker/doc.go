// Package checker ties the page analysis together.
//
// Architecture overview:
//
//   - HTTPFetcher downloads a page into a Page: capped body, truncation flag,
//     lowercase headers and the final origin after redirects.
//   - AnalyzePage runs the pipeline over one Page with its own
//     analysis.Context: HTML range, script extraction, policy analysis and
//     script matching (package csp), then the inline scanner and the ratio
//     checks (package inline). The outcome is a PageReport.
//   - PageChecker implements Checker so Runner can fan targets out with a
//     bounded worker pool and a global rate limit.
//   - DiscoverPages optionally expands a start URL into same-site pages.
//
// The analysis packages never touch the network; everything they see arrives
// through Page.
package checker
