package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asukhov/nsgctl/internal/audit"
	"github.com/asukhov/nsgctl/internal/azauth"
	"github.com/asukhov/nsgctl/internal/config"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/nsg"
	"github.com/asukhov/nsgctl/internal/output"
	"github.com/asukhov/nsgctl/internal/wizard"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile one named rule across every NSG in a subscription",
	Long: `Looks up the rule --name in every network security group of the subscription
and, per NSG:

  rule found, direction matches   update the fields you passed (--update-existing)
                                  or report it
  rule found, other direction     report the mismatch, never touch it
  rule missing                    create it (--create-if-not-exists) or skip

Only the fields you pass are changed on update. A create needs --access,
--protocol and --priority; the address and port lists default to "*".

List flags take comma-separated values. Flags given on the command line
override values from --rule-file. Failures on one NSG are reported and the
run continues; the exit code is non-zero only when the run cannot start
(authentication, subscription, no NSGs) or the input is invalid.`,
	Example: `  # Report where AllowSSH exists
  nsgctl reconcile --name AllowSSH --direction Inbound

  # Preview tightening the source of an existing rule
  nsgctl reconcile --name AllowSSH --direction Inbound \
      --source-address-prefixes 10.0.0.0/24,10.0.1.0/24 --update-existing --dry-run

  # Roll a rule out to every prod NSG
  nsgctl reconcile --name DenyTelnet --direction Inbound --access Deny --protocol Tcp \
      --destination-port-ranges 23 --priority 4000 --create-if-not-exists --nsg-filter 'prod-*' --yes`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

var (
	reconcileName                       string
	reconcileDirection                  string
	reconcileAccess                     string
	reconcileProtocol                   string
	reconcileSourceAddressPrefixes      string
	reconcileSourcePortRanges           string
	reconcileDestinationAddressPrefixes string
	reconcileDestinationPortRanges      string
	reconcilePriority                   int
	reconcileDescription                string
	reconcileCreate                     bool
	reconcileUpdate                     bool
	reconcileDryRun                     bool
	reconcileShowDetails                bool
	reconcileYes                        bool
	reconcileNSGFilter                  string
	reconcileSubscription               string
	reconcileTenantID                   string
	reconcileRuleFile                   string
	reconcileBackend                    string
)

// newPrompter is replaced in tests.
var newPrompter = func() wizard.Prompter { return wizard.NewSurveyPrompter() }

func init() {
	f := reconcileCmd.Flags()
	f.StringVar(&reconcileName, "name", "", "rule name (required unless set in --rule-file)")
	f.StringVar(&reconcileDirection, "direction", "", "rule direction (Inbound|Outbound)")
	f.StringVar(&reconcileAccess, "access", "", "desired access (Allow|Deny)")
	f.StringVar(&reconcileProtocol, "protocol", "", "desired protocol (Tcp|Udp|Icmp|Esp|Ah|Any)")
	f.StringVar(&reconcileSourceAddressPrefixes, "source-address-prefixes", "", "desired source address prefixes, comma-separated")
	f.StringVar(&reconcileSourcePortRanges, "source-port-ranges", "", "desired source port ranges, comma-separated")
	f.StringVar(&reconcileDestinationAddressPrefixes, "destination-address-prefixes", "", "desired destination address prefixes, comma-separated")
	f.StringVar(&reconcileDestinationPortRanges, "destination-port-ranges", "", "desired destination port ranges, comma-separated")
	f.IntVar(&reconcilePriority, "priority", 0, "desired priority (100-4096)")
	f.StringVar(&reconcileDescription, "description", "", "desired description")
	f.BoolVar(&reconcileCreate, "create-if-not-exists", false, "create the rule in NSGs that lack it")
	f.BoolVar(&reconcileUpdate, "update-existing", false, "apply the given fields to existing rules")
	f.BoolVar(&reconcileDryRun, "dry-run", false, "show what would change without writing to Azure")
	f.BoolVar(&reconcileShowDetails, "show-details", false, "print the fields of every rule found")
	f.BoolVarP(&reconcileYes, "yes", "y", false, "skip the confirmation before changes are applied")
	f.StringVar(&reconcileNSGFilter, "nsg-filter", "", "only NSGs whose name matches this glob (case-insensitive)")
	f.StringVar(&reconcileSubscription, "subscription", "", "subscription ID or name (default: az CLI default)")
	f.StringVar(&reconcileTenantID, "tenant-id", "", "Azure AD tenant ID (auto-detected from Azure CLI if omitted)")
	f.StringVar(&reconcileRuleFile, "rule-file", "", "YAML rule file (see: nsgctl schema export)")
	f.StringVar(&reconcileBackend, "backend", backendSDK, "Azure access backend (sdk|cli)")

	_ = viper.BindPFlag("subscription", f.Lookup("subscription"))
	_ = viper.BindPFlag("tenant_id", f.Lookup("tenant-id"))
	_ = viper.BindPFlag("nsg_filter", f.Lookup("nsg-filter"))
	_ = viper.BindPFlag("backend", f.Lookup("backend"))

	rootCmd.AddCommand(reconcileCmd)
}

// reconcileRequest is the merged input of one run.
type reconcileRequest struct {
	desired      nsg.RuleDescriptor
	policy       nsg.Policy
	subscription string
	tenantID     string
	nsgFilter    string
	backend      string
}

// setting returns the flag value when it was given, then the rule file
// value, then the viper value (environment, config file, flag default).
func setting(cmd *cobra.Command, flag, key, fromFile string) string {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return strings.TrimSpace(v)
	}
	if fromFile != "" {
		return fromFile
	}
	return strings.TrimSpace(viper.GetString(key))
}

func flagBool(cmd *cobra.Command, flag string, fromFile bool) bool {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetBool(flag)
		return v
	}
	return fromFile
}

func buildReconcileRequest(cmd *cobra.Command) (*reconcileRequest, error) {
	rf := &config.RuleFile{}
	if reconcileRuleFile != "" {
		loaded, err := config.Load(reconcileRuleFile)
		if err != nil {
			return nil, exitcode.UsageError(err)
		}
		rf = loaded
	}

	rule := rf.Rule
	flags := cmd.Flags()
	strFields := []struct {
		flag string
		dst  *string
		val  string
	}{
		{"name", &rule.Name, reconcileName},
		{"direction", &rule.Direction, reconcileDirection},
		{"access", &rule.Access, reconcileAccess},
		{"protocol", &rule.Protocol, reconcileProtocol},
		{"description", &rule.Description, reconcileDescription},
	}
	for _, sf := range strFields {
		if flags.Changed(sf.flag) {
			*sf.dst = sf.val
		}
	}
	listFields := []struct {
		flag string
		dst  *[]string
		val  string
	}{
		{"source-address-prefixes", &rule.SourceAddressPrefixes, reconcileSourceAddressPrefixes},
		{"source-port-ranges", &rule.SourcePortRanges, reconcileSourcePortRanges},
		{"destination-address-prefixes", &rule.DestinationAddressPrefixes, reconcileDestinationAddressPrefixes},
		{"destination-port-ranges", &rule.DestinationPortRanges, reconcileDestinationPortRanges},
	}
	for _, lf := range listFields {
		if flags.Changed(lf.flag) {
			*lf.dst = nsg.SplitList(lf.val)
		}
	}
	if flags.Changed("priority") {
		rule.Priority = reconcilePriority
	}

	if strings.TrimSpace(rule.Name) == "" {
		return nil, exitcode.UsageError(errors.New("--name is required"))
	}
	if strings.TrimSpace(rule.Direction) == "" {
		return nil, exitcode.UsageError(errors.New("--direction is required (Inbound|Outbound)"))
	}

	merged := &config.RuleFile{Rule: rule}
	desired, err := merged.Descriptor()
	if err != nil {
		return nil, exitcode.UsageError(err)
	}
	if err := desired.Validate(); err != nil {
		return nil, exitcode.UsageError(err)
	}
	if _, err := nsg.BuildDiff(desired); err != nil {
		return nil, exitcode.UsageError(fmt.Errorf("--priority: %w", err))
	}

	return &reconcileRequest{
		desired: desired,
		policy: nsg.Policy{
			CreateIfNotExists: flagBool(cmd, "create-if-not-exists", rf.Policy.CreateIfNotExists),
			UpdateExisting:    flagBool(cmd, "update-existing", rf.Policy.UpdateExisting),
			DryRun:            reconcileDryRun,
		},
		subscription: setting(cmd, "subscription", "subscription", rf.Target.Subscription),
		tenantID:     setting(cmd, "tenant-id", "tenant_id", ""),
		nsgFilter:    setting(cmd, "nsg-filter", "nsg_filter", rf.Target.NSGFilter),
		backend:      setting(cmd, "backend", "backend", ""),
	}, nil
}

// mayWrite reports whether the run can send a mutating call.
func (r *reconcileRequest) mayWrite(diff nsg.DiffSet) bool {
	if r.policy.DryRun {
		return false
	}
	return r.policy.CreateIfNotExists || (r.policy.UpdateExisting && !diff.Empty())
}

// reconcileResult is the JSON payload of a run.
type reconcileResult struct {
	Subscription azauth.Subscription `json:"subscription"`
	nsg.Report
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	output.Init(verbosity > 0, jsonOutput)
	ctx := cmd.Context()

	req, err := buildReconcileRequest(cmd)
	if err != nil {
		return err
	}
	diff, _ := nsg.BuildDiff(req.desired)
	audit.Annotate("rule", req.desired.Name)
	if req.mayWrite(diff) && !reconcileYes && effectiveCIMode() {
		return exitcode.UsageError(errors.New("--ci mode requires --yes or --dry-run for a reconcile that can change rules"))
	}

	be, err := newBackend(req.backend, azauth.Options{
		TenantID:    req.tenantID,
		Interactive: !effectiveCIMode(),
		Verbose:     verbosity > 0,
	})
	if err != nil {
		return err
	}
	session := be.Session()
	output.Step("Authenticating to Azure")
	if err := session.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	sub, err := session.SelectSubscription(ctx, req.subscription)
	if err != nil {
		return output.WrapErrorWithFix(err, "selecting subscription", "Pass --subscription <id|name>; list them with: az account list -o table")
	}
	audit.Annotate("subscription", sub.ID)
	audit.Annotate("tenant", sub.TenantID)
	output.Debug("subscription selected", "id", sub.ID, "name", sub.Name, "backend", req.backend)

	gw, err := be.Gateway(sub)
	if err != nil {
		return output.WrapError(err, "creating network client")
	}

	var groups []nsg.SecurityGroup
	err = output.WithSpinner("Listing network security groups", func() error {
		var listErr error
		groups, listErr = nsg.ListGroups(ctx, gw, req.nsgFilter)
		return listErr
	})
	if err != nil {
		if errors.Is(err, nsg.ErrNoGroups) {
			return output.WrapErrorWithFix(err, "nothing to reconcile", "Check --subscription and --nsg-filter")
		}
		return output.WrapErrorWithFix(err, "enumerating network security groups", "Run: nsgctl doctor")
	}

	w := cmd.ErrOrStderr()
	if !output.JSONMode {
		printReconcileHeader(cmd, req, sub, diff, len(groups))
	}

	if req.mayWrite(diff) && !reconcileYes {
		if err := wizard.ConfirmApply(newPrompter(), req.desired.Name, len(groups), subscriptionLabel(sub)); err != nil {
			return output.WrapErrorWithFix(err, "no changes applied", "Re-run with --dry-run to preview, or --yes to skip the prompt")
		}
	}

	printer := newResultPrinter(w, reconcileShowDetails)
	rec, err := nsg.NewReconciler(gw, req.desired, nsg.Options{Policy: req.policy, OnResult: printer.print})
	if err != nil {
		return exitcode.UsageError(err)
	}
	report := rec.Run(ctx, groups)
	annotateReport(report)

	if output.JSONMode {
		output.JSON(reconcileResult{Subscription: sub, Report: report})
	} else {
		output.Print("\n" + renderSummary(report))
	}

	if ctx.Err() != nil {
		return fmt.Errorf("reconcile interrupted: %w", ctx.Err())
	}
	return nil
}

func subscriptionLabel(sub azauth.Subscription) string {
	if sub.Name == "" {
		return sub.ID
	}
	return fmt.Sprintf("%s (%s)", sub.Name, sub.ID)
}

func printReconcileHeader(cmd *cobra.Command, req *reconcileRequest, sub azauth.Subscription, diff nsg.DiffSet, groups int) {
	w := cmd.ErrOrStderr()
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s nsgctl reconcile: %s (%s)\n", icon("🛡️ ", ">>"), req.desired.Name, req.desired.Direction)
	fmt.Fprintf(w, "   Subscription: %s\n", subscriptionLabel(sub))
	fmt.Fprintf(w, "   NSGs:         %d", groups)
	if req.nsgFilter != "" {
		fmt.Fprintf(w, " matching %q", req.nsgFilter)
	}
	fmt.Fprintln(w)
	if diff.Empty() {
		fmt.Fprintln(w, "   Changes:      none requested")
	} else {
		fmt.Fprintf(w, "   Changes:      %s\n", joinChanges(diff))
	}
	fmt.Fprintf(w, "   Policy:       update-existing=%t create-if-not-exists=%t\n", req.policy.UpdateExisting, req.policy.CreateIfNotExists)
	fmt.Fprintln(w)
	switch {
	case req.policy.DryRun:
		output.Simulated("No changes will be sent to Azure.")
	case !req.policy.UpdateExisting && !req.policy.CreateIfNotExists:
		output.Skip("Report only: pass --update-existing or --create-if-not-exists to change rules")
	case req.policy.UpdateExisting && diff.Empty() && !req.policy.CreateIfNotExists:
		output.Warn("--update-existing given without fields to change; existing rules are reported only")
	}
}

func annotateReport(report nsg.Report) {
	c := report.Counters
	for k, v := range map[string]int{
		"checked":    c.Checked,
		"found":      c.Found,
		"mismatched": c.Mismatched,
		"updated":    c.Updated,
		"created":    c.Created,
		"refused":    c.Refused,
		"failed":     c.Failed,
	} {
		audit.Annotate(k, strconv.Itoa(v))
	}
	audit.Annotate("dryRun", strconv.FormatBool(report.Policy.DryRun))
}
