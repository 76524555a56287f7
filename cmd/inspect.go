package cmd

import (
	"fmt"
	"strings"

	"github.com/khanhnv2901/pagescope/internal/checker"
	"github.com/khanhnv2901/pagescope/internal/domain/analysis"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	serrors "github.com/khanhnv2901/pagescope/internal/shared/errors"
	"github.com/khanhnv2901/pagescope/internal/shared/security"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Analyze a saved HTML file without touching the network",
	Long: `Analyze a local HTML file as if it had been served from --origin.
Response headers such as Content-Security-Policy can be supplied with
repeated --header flags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)

		origin, _ := cmd.Flags().GetString("origin")
		rawHeaders, _ := cmd.Flags().GetStringArray("header")
		minSeverityFlag, _ := cmd.Flags().GetString("min-severity")

		headers, err := parseHeaderFlags(rawHeaders)
		if err != nil {
			return err
		}
		minSeverity, err := parseMinSeverity(minSeverityFlag)
		if err != nil {
			return err
		}

		page, err := loadLocalPage(args[0], appCtx.Config.Fetch.MaxBodyBytes)
		if err != nil {
			return err
		}
		page.Headers = headers
		page.Origin = checker.NormalizeTarget(origin)

		actx := analysis.NewContext(page.Origin, appCtx.Logger)
		report := checker.AnalyzePage(actx, page)
		return renderPageReport(cmd.OutOrStdout(), report, outputFormat, minSeverity)
	},
}

func loadLocalPage(path string, maxBody int) (checker.Page, error) {
	data, err := security.ReadFileLimited(path, consts.MaxLocalFileBytes)
	if err != nil {
		return checker.Page{}, &InputError{Path: path, Err: err}
	}
	if maxBody <= 0 {
		maxBody = consts.DefaultMaxBodyBytes
	}
	page := checker.Page{Body: data, Status: 200}
	if len(data) > maxBody {
		page.Body = data[:maxBody]
		page.Truncated = true
	}
	return page, nil
}

// parseHeaderFlags turns "Name: value" pairs into a lowercase header map.
// Repeated names are joined with ", " the same way fetched headers are.
func parseHeaderFlags(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%w: %q", serrors.ErrInvalidHeader, h)
		}
		value = strings.TrimSpace(value)
		if prev, exists := headers[name]; exists {
			value = prev + ", " + value
		}
		headers[name] = value
	}
	return headers, nil
}

func init() {
	inspectCmd.Flags().String("origin", "https://localhost/", "URL the file is treated as being served from")
	inspectCmd.Flags().StringArrayP("header", "H", nil, `response header as "Name: value" (repeatable)`)
	inspectCmd.Flags().String("min-severity", "", "only print warnings at or above this severity")
}
