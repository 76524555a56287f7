package cmd

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zaptest"
)

// setupTestAppContext installs an AppContext rooted in a temp results dir and
// returns a func restoring the previous one.
func setupTestAppContext(t *testing.T) func() {
	t.Helper()
	prevCtx := globalAppContext
	prevCfg := *cliConfig
	prevNoColor := color.NoColor
	color.NoColor = true

	globalAppContext = &AppContext{
		Logger:     zaptest.NewLogger(t).Sugar(),
		ResultsDir: t.TempDir(),
		Config:     cliConfig,
	}
	return func() {
		globalAppContext = prevCtx
		*cliConfig = prevCfg
		color.NoColor = prevNoColor
	}
}

// runRoot executes the root command with args and returns its stdout.
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	prevNoColor := color.NoColor
	t.Cleanup(func() {
		color.NoColor = prevNoColor
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag of c and its subcommands to its default so
// values from an earlier Execute do not leak into the next one.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
