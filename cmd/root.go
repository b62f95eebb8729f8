// Package cmd implements the Cobra-based CLI for nsgctl.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asukhov/nsgctl/internal/exitcode"
)

var (
	cfgFile    string
	verbosity  int
	jsonOutput bool // --json flag for machine-readable output
	ciMode     bool
)

// rootCmd is the top-level command for nsgctl.
var rootCmd = &cobra.Command{
	Use:   "nsgctl",
	Short: "Reconcile one NSG security rule across an Azure subscription",
	Long: `nsgctl makes one named Network Security Group rule consistent across every
NSG in an Azure subscription.

For each NSG it looks the rule up by name and direction, then, depending on
the flags, updates the fields you pass, creates the rule where it is missing,
or only reports what it found. Nothing is written unless --update-existing or
--create-if-not-exists is given, and --dry-run shows what would change.

Defaults can be set in nsgctl.yaml (current directory or $HOME) or through
NSGCTL_* environment variables, e.g. NSGCTL_SUBSCRIPTION, NSGCTL_BACKEND.

Workflow: doctor → reconcile --dry-run → reconcile → history`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the context
// passed to every Azure call.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: nsgctl.yaml in . or $HOME)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v, -vv)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON (machine-readable)")
	rootCmd.PersistentFlags().BoolVar(&ciMode, "ci", false, "strict non-interactive mode (fails instead of prompting)")

	_ = viper.BindPFlag("ci", rootCmd.PersistentFlags().Lookup("ci"))

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return exitcode.UsageError(err)
	})
}

func effectiveCIMode() bool {
	if ciMode || viper.GetBool("ci") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(os.Getenv("CI")), "true")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("nsgctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}
	viper.SetEnvPrefix("NSGCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbosity > 0 {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
