package cmd

import (
	"time"

	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultTimeoutSeconds = 10
	defaultConcurrency    = 4
	defaultRateLimit      = 2
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Fetch FetchConfig
	Crawl CrawlConfig
}

// FetchConfig holds the settings for fetching and analyzing targets.
type FetchConfig struct {
	TimeoutSecs     int
	MaxBodyBytes    int
	Concurrency     int
	RateLimit       int
	UserAgent       string
	ProgressEnabled bool
	MinSeverity     string
}

// CrawlConfig captures same-site discovery options.
type CrawlConfig struct {
	MaxDepth int
	MaxPages int
}

// Timeout returns the per-target timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Fetch: FetchConfig{
			TimeoutSecs:  defaultTimeoutSeconds,
			MaxBodyBytes: consts.DefaultMaxBodyBytes,
			Concurrency:  defaultConcurrency,
			RateLimit:    defaultRateLimit,
			UserAgent:    consts.DefaultUserAgent,
		},
		Crawl: CrawlConfig{
			MaxDepth: 0,
			MaxPages: 20,
		},
	}
}

// applyConfigDefaults merges config file defaults into the runtime config when the user
// did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := analyzeCmd.Flags()
	if cmd != nil && cmd != analyzeCmd {
		flags = cmd.Flags()
	}

	if viper.IsSet("defaults.timeout_secs") {
		applyIntDefault(flags, "timeout", viper.GetInt("defaults.timeout_secs"), func(v int) {
			cliConfig.Fetch.TimeoutSecs = v
		})
	}
	if viper.IsSet("defaults.max_body_bytes") {
		applyIntDefault(flags, "max-body", viper.GetInt("defaults.max_body_bytes"), func(v int) {
			cliConfig.Fetch.MaxBodyBytes = v
		})
	}
	if viper.IsSet("defaults.concurrency") {
		applyIntDefault(flags, "concurrency", viper.GetInt("defaults.concurrency"), func(v int) {
			cliConfig.Fetch.Concurrency = v
		})
	}
	if viper.IsSet("defaults.rate_limit") {
		applyIntDefault(flags, "rate", viper.GetInt("defaults.rate_limit"), func(v int) {
			cliConfig.Fetch.RateLimit = v
		})
	}
	if viper.IsSet("defaults.user_agent") {
		setStringFlagIfUnset(flags, "user-agent", viper.GetString("defaults.user_agent"))
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
