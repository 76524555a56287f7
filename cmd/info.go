package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show configuration, data directory paths and active defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		out := cmd.OutOrStdout()

		resultsExists := "(not created yet)"
		if _, err := os.Stat(appCtx.ResultsDir); err == nil {
			resultsExists = "(exists)"
		}

		configPath := configFilePath(viper.ConfigFileUsed())
		configExists := "(using defaults)"
		if _, err := os.Stat(configPath); err == nil {
			configExists = "(exists)"
		}

		cfg := appCtx.Config.Fetch
		fmt.Fprint(out, banner())
		fmt.Fprintf(out, "Platform:           %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "Results Directory:  %s %s\n", appCtx.ResultsDir, resultsExists)
		fmt.Fprintf(out, "Configuration File: %s %s\n", configPath, configExists)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Defaults:")
		fmt.Fprintf(out, "  timeout:      %ds\n", cfg.TimeoutSecs)
		fmt.Fprintf(out, "  max body:     %d bytes\n", cfg.MaxBodyBytes)
		fmt.Fprintf(out, "  concurrency:  %d\n", cfg.Concurrency)
		fmt.Fprintf(out, "  rate limit:   %d/s\n", cfg.RateLimit)
		fmt.Fprintf(out, "  user agent:   %s\n", cfg.UserAgent)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Override defaults in the configuration file, for example:")
		fmt.Fprintln(out, "  results_dir: /custom/path/to/results")
		fmt.Fprintln(out, "  defaults:")
		fmt.Fprintln(out, "    timeout_secs: 15")
		fmt.Fprintln(out, "    concurrency: 8")
		return nil
	},
}
