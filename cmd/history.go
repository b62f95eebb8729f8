package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/asukhov/nsgctl/internal/audit"
	"github.com/asukhov/nsgctl/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show CLI audit history",
	Long: `Displays audit events written by nsgctl in JSONL format.

By default, reads ~/.nsgctl/audit.log and prints the latest events.
Use --subscription, --rule or --operation to filter.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historySubscription string
	historyRule         string
	historyOperation    string
	historyLimit        int
)

func init() {
	historyCmd.Flags().StringVar(&historySubscription, "subscription", "", "filter by subscription ID")
	historyCmd.Flags().StringVar(&historyRule, "rule", "", "filter by rule name (case-insensitive)")
	historyCmd.Flags().StringVar(&historyOperation, "operation", "", "filter by operation, e.g. reconcile")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max number of events to display")
	rootCmd.AddCommand(historyCmd)
}

// historyCounters are the reconcile counters shown per event, in order.
var historyCounters = []string{"checked", "found", "mismatched", "updated", "created", "refused", "failed"}

func filterEvents(events []audit.Event) []audit.Event {
	filtered := make([]audit.Event, 0, len(events))
	for _, event := range events {
		if historySubscription != "" && !strings.EqualFold(event.Subscription, historySubscription) {
			continue
		}
		if historyRule != "" && !strings.EqualFold(event.Rule, historyRule) {
			continue
		}
		if historyOperation != "" && event.Operation != historyOperation {
			continue
		}
		filtered = append(filtered, event)
	}
	if historyLimit > 0 && len(filtered) > historyLimit {
		filtered = filtered[len(filtered)-historyLimit:]
	}
	return filtered
}

func runHistory(cmd *cobra.Command, _ []string) error {
	output.Init(verbosity > 0, jsonOutput)
	w := cmd.ErrOrStderr()

	events, err := audit.ReadUserAudit()
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}
	filtered := filterEvents(events)

	if output.JSONMode {
		output.JSON(filtered)
		return nil
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "No audit events found.")
		return nil
	}
	if len(filtered) == 0 {
		fmt.Fprintln(w, "No matching audit events.")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s nsgctl history\n", icon("📜", ">>"))
	for _, event := range filtered {
		status := color.New(color.FgGreen)
		if event.Result != "success" {
			status = color.New(color.FgRed)
		}
		status.Fprintf(w, "  %s", event.Result)
		fmt.Fprintf(w, "  %s  op=%s", event.Timestamp, event.Operation)
		if event.Rule != "" {
			fmt.Fprintf(w, "  rule=%s", event.Rule)
		}
		if event.Subscription != "" {
			fmt.Fprintf(w, "  subscription=%s", event.Subscription)
		}
		fmt.Fprintf(w, "  exit=%d  duration=%dms\n", event.ExitCode, event.DurationMs)

		var counts []string
		for _, key := range historyCounters {
			if v := event.MetadataValue(key); v != "" {
				counts = append(counts, key+"="+v)
			}
		}
		if len(counts) > 0 {
			if event.MetadataValue("dryRun") == "true" {
				counts = append(counts, "dry-run")
			}
			fmt.Fprintf(w, "      %s\n", strings.Join(counts, " "))
		}
	}

	return nil
}
