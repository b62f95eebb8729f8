package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/asukhov/nsgctl/internal/config"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/output"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export or validate the rule file JSON Schema",
	Long: `Schema tooling for nsgctl rule files (--rule-file).

Examples:
  nsgctl schema export                      # print schema to stdout
  nsgctl schema export --output schema.json # write to file
  nsgctl schema validate rule.yaml          # validate a rule file`,
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the rule file JSON Schema",
	Args:  cobra.NoArgs,
	RunE:  runSchemaExport,
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a rule file against the JSON Schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaValidate,
}

var schemaOutputFile string

func init() {
	schemaExportCmd.Flags().StringVarP(&schemaOutputFile, "output", "o", "", "write schema to file instead of stdout")

	schemaCmd.AddCommand(schemaExportCmd)
	schemaCmd.AddCommand(schemaValidateCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runSchemaExport(cmd *cobra.Command, _ []string) error {
	data := config.GetSchema()
	if len(data) == 0 {
		return exitcode.Wrap(exitcode.Fatal, errors.New("no embedded schema available"))
	}

	if schemaOutputFile != "" {
		outPath, err := filepath.Abs(schemaOutputFile)
		if err != nil {
			return exitcode.UsageError(err)
		}
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "%s Schema written to %s\n", icon("✅", "[OK]"), outPath)
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	output.Init(verbosity > 0, jsonOutput)
	path := args[0]

	if _, err := config.Load(path); err != nil {
		var invalid *config.InvalidError
		if errors.As(err, &invalid) {
			if output.JSONMode {
				output.JSON(config.ValidationResult{Valid: false, Errors: invalid.Errors})
			} else {
				for _, e := range invalid.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", icon("❌", "[FAIL]"), e)
				}
			}
			return exitcode.UsageError(fmt.Errorf("%s: schema validation failed with %d error(s)", path, len(invalid.Errors)))
		}
		return exitcode.UsageError(fmt.Errorf("load rule file: %w", err))
	}
	if output.JSONMode {
		output.JSON(config.ValidationResult{Valid: true})
		return nil
	}
	color.New(color.FgGreen, color.Bold).Fprintf(cmd.ErrOrStderr(), "%s %s is valid.\n", icon("✅", "[OK]"), path)
	return nil
}
