package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const configName = ".pagescope"

// AppContext carries what every command needs after the root pre-run.
type AppContext struct {
	Logger     *zap.SugaredLogger
	ResultsDir string
	Config     *CLIConfig
}

var (
	cfgFile          string
	resultsDirFlag   string
	debug            bool
	noColor          bool
	outputFormat     string
	globalAppContext *AppContext
)

var rootCmd = &cobra.Command{
	Use:           "pagescope",
	Short:         "Inspect web pages for script abuse, cloaking and weak Content-Security-Policy",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(configName)
			viper.SetConfigType("yaml")
		}
		if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
			return &InputError{Path: cfgFile, Err: err}
		}

		if noColor {
			color.NoColor = true
		}

		resultsDir := resultsDirFlag
		if resultsDir == "" {
			resultsDir = viper.GetString("results_dir")
		}
		if resultsDir == "" {
			dir, err := defaultResultsDir()
			if err != nil {
				return err
			}
			resultsDir = dir
		}
		if abs, err := filepath.Abs(resultsDir); err == nil {
			resultsDir = abs
		}

		logger, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		applyConfigDefaults(cmd)
		storeAppContext(cmd, &AppContext{
			Logger:     logger,
			ResultsDir: resultsDir,
			Config:     cliConfig,
		})
		logger.Debugf("results_dir=%s config=%s", resultsDir, viper.ConfigFileUsed())
		return nil
	},
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.OutputPaths = []string{"stderr"}
		l, err = cfg.Build()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if globalAppContext == nil {
		globalAppContext = &AppContext{
			Logger:     zap.NewNop().Sugar(),
			ResultsDir: "./results",
			Config:     cliConfig,
		}
	}
	return globalAppContext
}

// ensureResultsRoot creates the results directory on first write.
func ensureResultsRoot(appCtx *AppContext) error {
	if err := os.MkdirAll(appCtx.ResultsDir, consts.DefaultDirPerm); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pagescope.yaml)")
	rootCmd.PersistentFlags().StringVar(&resultsDirFlag, "results-dir", "", "directory for run results (overrides results_dir in config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "output format: text or json")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(infoCmd)
}
