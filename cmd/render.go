package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/asukhov/nsgctl/internal/nsg"
	"github.com/asukhov/nsgctl/internal/output"
)

// resultPrinter streams one status line per NSG as the run progresses.
type resultPrinter struct {
	w           io.Writer
	showDetails bool
}

func newResultPrinter(w io.Writer, showDetails bool) *resultPrinter {
	return &resultPrinter{w: w, showDetails: showDetails}
}

func icon(fancy, plain string) string {
	if output.NoColor() {
		return plain
	}
	return fancy
}

func (p *resultPrinter) print(r nsg.GroupResult) {
	output.Debug("group reconciled", "nsg", r.Group.String(), "match", r.Match.String(), "action", string(r.Decision.Action), "disposition", string(r.Disposition))
	if output.JSONMode {
		return
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	label := r.Group.String()

	switch r.Disposition {
	case nsg.DispositionUpdated:
		if r.Simulated {
			yellow.Fprintf(p.w, "  %s %s: would update %s\n", icon("🧪", "[DRY-RUN]"), label, joinChanges(r.Changes))
		} else {
			green.Fprintf(p.w, "  %s %s: updated %s\n", icon("✅", "[OK]"), label, joinChanges(r.Changes))
		}
	case nsg.DispositionCreated:
		verb := "created"
		if r.Simulated {
			verb = "would create"
		}
		spec := ""
		if r.Create != nil {
			spec = fmt.Sprintf(" (%s %s %s, priority %d)", r.Create.Direction, r.Create.Access, r.Create.Protocol, r.Create.Priority)
		}
		if r.Simulated {
			yellow.Fprintf(p.w, "  %s %s: %s rule%s\n", icon("🧪", "[DRY-RUN]"), label, verb, spec)
		} else {
			green.Fprintf(p.w, "  %s %s: %s rule%s\n", icon("✅", "[OK]"), label, verb, spec)
		}
	case nsg.DispositionUnchanged:
		fmt.Fprintf(p.w, "  %s %s: rule found, %s\n", icon("ℹ️ ", "[INFO]"), label, r.Decision.Reason)
	case nsg.DispositionSkipped:
		fmt.Fprintf(p.w, "  %s %s: %s\n", icon("⏭️ ", "[SKIP]"), label, r.Decision.Reason)
	case nsg.DispositionMismatched:
		dir := ""
		if r.Existing != nil {
			dir = fmt.Sprintf(" (existing rule is %s)", r.Existing.Direction)
		}
		yellow.Fprintf(p.w, "  %s %s: %s%s\n", icon("⚠️ ", "[WARN]"), label, r.Decision.Reason, dir)
	case nsg.DispositionRefused:
		yellow.Fprintf(p.w, "  %s %s: creation refused, %s\n", icon("🚫", "[REFUSED]"), label, r.Decision.Reason)
	default:
		red.Fprintf(p.w, "  %s %s\n", icon("❌", "[FAIL]"), r.Error)
	}

	if p.showDetails && r.Existing != nil {
		p.details(r.Existing)
	}
}

func (p *resultPrinter) details(e *nsg.ExistingRule) {
	rows := []struct{ k, v string }{
		{"direction", string(e.Direction)},
		{"access", string(e.Access)},
		{"protocol", string(e.Protocol)},
		{"priority", strconv.Itoa(e.Priority)},
		{"source", strings.Join(e.SourceAddressPrefixes, ",") + " : " + strings.Join(e.SourcePortRanges, ",")},
		{"destination", strings.Join(e.DestinationAddressPrefixes, ",") + " : " + strings.Join(e.DestinationPortRanges, ",")},
	}
	if e.Description != "" {
		rows = append(rows, struct{ k, v string }{"description", e.Description})
	}
	if e.ProvisioningState != "" {
		rows = append(rows, struct{ k, v string }{"state", e.ProvisioningState})
	}
	for _, row := range rows {
		fmt.Fprintf(p.w, "       %-12s %s\n", row.k, row.v)
	}
}

func joinChanges(d nsg.DiffSet) string {
	parts := make([]string, 0, len(d))
	for _, c := range d {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " ")
}

// renderSummary draws the end-of-run counters in a box.
func renderSummary(report nsg.Report) string {
	lines := report.Summary()
	width := 0
	for _, l := range lines {
		if len(l.Label) > width {
			width = len(l.Label)
		}
	}
	rows := make([]string, 0, len(lines)+1)
	rows = append(rows, output.StyleBold.Render("Summary for rule "+report.Rule+" ("+string(report.Direction)+")"))
	for _, l := range lines {
		value := strconv.Itoa(l.Value)
		rows = append(rows, fmt.Sprintf("%-*s  %s", width+1, l.Label+":", output.LevelStyle(l.Level).Render(value)))
	}
	if report.Policy.DryRun {
		rows = append(rows, output.LevelStyle("warn").Render("Dry run: no changes were sent to Azure."))
	}
	return output.StyleBox.Render(strings.Join(rows, "\n"))
}
