package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/asukhov/nsgctl/internal/doctor"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/output"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check prerequisites and Azure access",
	Long: `Verify that the az CLI is installed and logged in, that the
Microsoft.Network provider is registered and that NSGs can be listed in
the target subscription.

Each check reports ✅ (pass), ❌ (fail), or ⚠️ (warning) with an
actionable fix suggestion.

Exit code 0 if all critical checks pass, 1 otherwise.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorSubscription string

// newExecutor is replaced in tests.
var newExecutor = doctor.NewRealExecutor

func init() {
	doctorCmd.Flags().StringVar(&doctorSubscription, "subscription", "", "subscription ID or name to check (default: az CLI default)")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	output.Init(verbosity > 0, jsonOutput)

	summary := doctor.RunAll(cmd.Context(), newExecutor(), doctorSubscription)
	doctor.PrintResults(cmd.ErrOrStderr(), summary)

	if summary.HasFailure {
		return exitcode.Wrap(exitcode.Fatal, errors.New("one or more critical checks failed"))
	}
	return nil
}
