package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestApplyIntDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("timeout", 0, "")

	var applied int
	applyIntDefault(flags, "timeout", 15, func(v int) {
		applied = v
	})
	if applied != 15 {
		t.Fatalf("expected setter to receive 15, got %d", applied)
	}

	// When flag already set, setter should not run.
	if err := flags.Set("timeout", "7"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	applied = 0
	applyIntDefault(flags, "timeout", 20, func(v int) {
		applied = v
	})
	if applied != 0 {
		t.Fatalf("setter should not run when flag overridden, got %d", applied)
	}
}

func TestApplyIntDefaultNilInputs(t *testing.T) {
	called := false
	applyIntDefault(nil, "timeout", 5, func(int) { called = true })
	if called {
		t.Fatal("setter should not run without a flag set")
	}
	applyIntDefault(pflag.NewFlagSet("x", pflag.ContinueOnError), "timeout", 5, nil)
}

func TestSetStringFlagIfUnset(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("user-agent", "default", "")

	setStringFlagIfUnset(flags, "user-agent", "from-config")
	if got, _ := flags.GetString("user-agent"); got != "from-config" {
		t.Fatalf("expected from-config, got %s", got)
	}

	if err := flags.Set("user-agent", "from-flag"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	setStringFlagIfUnset(flags, "user-agent", "ignored")
	if got, _ := flags.GetString("user-agent"); got != "from-flag" {
		t.Fatalf("explicit flag should win, got %s", got)
	}

	// Unknown flags are ignored.
	setStringFlagIfUnset(flags, "missing", "value")
}

func TestApplyConfigDefaults(t *testing.T) {
	defer setupTestAppContext(t)()
	t.Cleanup(viper.Reset)

	viper.Set("defaults.timeout_secs", 25)
	viper.Set("defaults.concurrency", 9)
	viper.Set("defaults.max_body_bytes", 2048)
	viper.Set("defaults.rate_limit", 0)

	cmd := &cobra.Command{Use: "scratch"}
	cmd.Flags().Int("timeout", 0, "")
	cmd.Flags().Int("concurrency", 0, "")
	if err := cmd.Flags().Set("concurrency", "3"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	applyConfigDefaults(cmd)

	if cliConfig.Fetch.TimeoutSecs != 25 {
		t.Errorf("expected timeout 25 from config, got %d", cliConfig.Fetch.TimeoutSecs)
	}
	if cliConfig.Fetch.MaxBodyBytes != 2048 {
		t.Errorf("expected max body 2048 from config, got %d", cliConfig.Fetch.MaxBodyBytes)
	}
	if cliConfig.Fetch.RateLimit != 0 {
		t.Errorf("expected rate limit 0 from config, got %d", cliConfig.Fetch.RateLimit)
	}
	if cliConfig.Fetch.Concurrency == 9 {
		t.Error("explicit --concurrency should not be overridden by config")
	}
}

func TestFetchConfigTimeout(t *testing.T) {
	cfg := FetchConfig{TimeoutSecs: 3}
	if cfg.Timeout().Seconds() != 3 {
		t.Fatalf("unexpected timeout %v", cfg.Timeout())
	}
}
