package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/asukhov/nsgctl/internal/config"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/output"
	"github.com/asukhov/nsgctl/internal/wizard"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a rule file with an interactive wizard",
	Long: `Asks for the rule fields, the write policy and an optional NSG name
filter, then writes a rule file usable with:

  nsgctl reconcile --rule-file <path>

The default path is rule.yaml. An existing file is only replaced with --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing rule file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	output.Init(verbosity > 0, jsonOutput)

	path := "rule.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if effectiveCIMode() {
		return exitcode.UsageError(errors.New("init is interactive and cannot run in --ci mode; write the rule file by hand (see: nsgctl schema export)"))
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return output.NewErrorWithFix(fmt.Sprintf("%s already exists", path), "Pass --force to overwrite it")
	}

	in, err := wizard.NewRuleWizard(newPrompter()).Run()
	if err != nil {
		if errors.Is(err, wizard.ErrCanceled) {
			return output.WrapError(err, "init canceled")
		}
		return err
	}
	rf, err := in.ToRuleFile()
	if err != nil {
		return exitcode.UsageError(err)
	}
	if err := config.Save(rf, path); err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "%s Rule file written to %s\n", icon("✅", "[OK]"), path)
	fmt.Fprintf(cmd.ErrOrStderr(), "   Preview with: nsgctl reconcile --rule-file %s --dry-run\n", path)
	return nil
}
