package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asukhov/nsgctl/internal/audit"
	"github.com/asukhov/nsgctl/internal/azauth"
	"github.com/asukhov/nsgctl/internal/config"
	"github.com/asukhov/nsgctl/internal/doctor"
	"github.com/asukhov/nsgctl/internal/exitcode"
	"github.com/asukhov/nsgctl/internal/nsg"
	"github.com/asukhov/nsgctl/internal/output"
	"github.com/asukhov/nsgctl/internal/wizard"
	_ "github.com/asukhov/nsgctl/schemas" // ensure JSON schema is loaded
)

// executeCommand runs a CLI command and captures output. Text output from
// the output package lands in stderr.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CI", "")
	t.Setenv(audit.DisableEnv, "1")

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	output.SetOutput(stderr)
	output.SetJSONWriter(stdout)
	t.Cleanup(func() {
		output.SetOutput(nil)
		output.SetJSONWriter(nil)
		output.Init(false, false)
	})

	// Reset all flag defaults to avoid state leaking between tests.
	var resetFlags func(cmd *cobra.Command)
	resetFlags = func(cmd *cobra.Command) {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range cmd.Commands() {
			resetFlags(sub)
		}
	}
	resetFlags(rootCmd)
	ciMode, verbosity, jsonOutput = false, 0, false

	err := rootCmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

// ── Fakes ───────────────────────────────────────────────────

type fakeGateway struct {
	groups  []nsg.SecurityGroup
	rules   map[string]*nsg.ExistingRule
	getErr  map[string]error
	updates []string
	creates []nsg.CreateSpec
	changes []nsg.DiffSet
}

func (f *fakeGateway) ListGroups(_ context.Context, filter string) ([]nsg.SecurityGroup, error) {
	var out []nsg.SecurityGroup
	for _, g := range f.groups {
		if nsg.MatchName(filter, g.Name) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetRule(_ context.Context, g nsg.SecurityGroup, name string) (*nsg.ExistingRule, error) {
	if err := f.getErr[g.String()]; err != nil {
		return nil, err
	}
	r, ok := f.rules[g.String()]
	if !ok || r.Name != name {
		return nil, nil
	}
	return r, nil
}

func (f *fakeGateway) UpdateRule(_ context.Context, g nsg.SecurityGroup, _ string, changes nsg.DiffSet) error {
	f.updates = append(f.updates, g.String())
	f.changes = append(f.changes, changes)
	return nil
}

func (f *fakeGateway) CreateRule(_ context.Context, _ nsg.SecurityGroup, spec nsg.CreateSpec) error {
	f.creates = append(f.creates, spec)
	return nil
}

type fakeSession struct {
	authErr error
	sub     azauth.Subscription
	asked   string
}

func (s *fakeSession) EnsureAuthenticated(context.Context) error { return s.authErr }

func (s *fakeSession) SelectSubscription(_ context.Context, idOrName string) (azauth.Subscription, error) {
	s.asked = idOrName
	return s.sub, nil
}

type fakeBackend struct {
	session *fakeSession
	gw      *fakeGateway
}

func (b *fakeBackend) Session() cloudSession { return b.session }

func (b *fakeBackend) Gateway(azauth.Subscription) (nsg.Gateway, error) { return b.gw, nil }

var (
	webGroup = nsg.SecurityGroup{Name: "web-nsg", ResourceGroup: "rg-web"}
	dbGroup  = nsg.SecurityGroup{Name: "db-nsg", ResourceGroup: "rg-db"}
)

// useFakeBackend wires a two-NSG subscription where only web-nsg has AllowSSH.
func useFakeBackend(t *testing.T) (*fakeBackend, *int) {
	t.Helper()
	be := &fakeBackend{
		session: &fakeSession{sub: azauth.Subscription{ID: "00000000-0000-0000-0000-000000000001", Name: "prod", TenantID: "contoso"}},
		gw: &fakeGateway{
			groups: []nsg.SecurityGroup{webGroup, dbGroup},
			rules: map[string]*nsg.ExistingRule{
				webGroup.String(): {Name: "AllowSSH", Direction: nsg.Inbound, Access: nsg.Allow, Protocol: nsg.ProtocolTCP, Priority: 300},
			},
			getErr: map[string]error{},
		},
	}
	calls := 0
	original := newBackend
	newBackend = func(string, azauth.Options) (backend, error) {
		calls++
		return be, nil
	}
	t.Cleanup(func() { newBackend = original })
	return be, &calls
}

// answerPrompter answers prompts by label; unknown labels get the default.
type answerPrompter struct {
	inputs   map[string]string
	selects  map[string]string
	multi    map[string][]string
	confirm  bool
	err      error
	confirms []string
}

func (p *answerPrompter) Input(label, defaultValue string, _ survey.Validator) (string, error) {
	if v, ok := p.inputs[label]; ok {
		return v, nil
	}
	return defaultValue, nil
}

func (p *answerPrompter) Select(label string, _ []string, defaultValue string) (string, error) {
	if v, ok := p.selects[label]; ok {
		return v, nil
	}
	return defaultValue, nil
}

func (p *answerPrompter) Confirm(label string, _ bool) (bool, error) {
	p.confirms = append(p.confirms, label)
	return p.confirm, p.err
}

func (p *answerPrompter) MultiSelect(label string, _ []string, defaults []string) ([]string, error) {
	if v, ok := p.multi[label]; ok {
		return v, nil
	}
	return defaults, nil
}

func usePrompter(t *testing.T, p *answerPrompter) {
	t.Helper()
	original := newPrompter
	newPrompter = func() wizard.Prompter { return p }
	t.Cleanup(func() { newPrompter = original })
}

// ── Root command ────────────────────────────────────────────

func TestRootCmd_Help(t *testing.T) {
	stdout, _, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "nsgctl")
	assert.Contains(t, stdout, "reconcile")
}

func TestRootCmd_UnknownFlagIsUsageError(t *testing.T) {
	_, _, err := executeCommand(t, "reconcile", "--colour", "blue")
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.Of(err))
}

// ── Version command ─────────────────────────────────────────

func TestVersionCmd(t *testing.T) {
	stdout, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "nsgctl version")
}

// ── Reconcile command ───────────────────────────────────────

func TestReconcile_UpdatesMatchingRule(t *testing.T) {
	be, _ := useFakeBackend(t)

	_, stderr, err := executeCommand(t, "reconcile",
		"--name", "AllowSSH", "--direction", "inbound",
		"--source-address-prefixes", "10.0.0.0/24, 10.0.1.0/24",
		"--update-existing", "--yes")
	require.NoError(t, err)

	assert.Equal(t, []string{"rg-web/web-nsg"}, be.gw.updates)
	require.Len(t, be.gw.changes, 1)
	assert.Equal(t, nsg.DiffSet{{Field: nsg.FieldSourceAddressPrefixes, Values: []string{"10.0.0.0/24", "10.0.1.0/24"}}}, be.gw.changes[0])
	assert.Empty(t, be.gw.creates)

	assert.Contains(t, stderr, "[OK] rg-web/web-nsg: updated source-address-prefixes=[10.0.0.0/24,10.0.1.0/24]")
	assert.Contains(t, stderr, "[SKIP] rg-db/db-nsg: "+nsg.ReasonCreationSkipped)
	assert.Contains(t, stderr, "Summary for rule AllowSSH (Inbound)")
	assert.Contains(t, stderr, "Rules updated:")
	assert.NotContains(t, stderr, "Rules created:")
}

func TestReconcile_DryRunMakesNoWrites(t *testing.T) {
	be, _ := useFakeBackend(t)
	p := &answerPrompter{}
	usePrompter(t, p)

	_, stderr, err := executeCommand(t, "reconcile",
		"--name", "AllowSSH", "--direction", "Inbound",
		"--access", "Deny", "--protocol", "Tcp", "--priority", "310",
		"--update-existing", "--create-if-not-exists", "--dry-run")
	require.NoError(t, err)

	assert.Empty(t, be.gw.updates)
	assert.Empty(t, be.gw.creates)
	assert.Empty(t, p.confirms, "dry run needs no confirmation")
	assert.Contains(t, stderr, "[DRY-RUN] rg-web/web-nsg: would update access=Deny protocol=Tcp priority=310")
	assert.Contains(t, stderr, "[DRY-RUN] rg-db/db-nsg: would create rule (Inbound Deny Tcp, priority 310)")
	assert.Contains(t, stderr, "Dry run: no changes were sent to Azure.")
}

func TestReconcile_ReportOnlyNeedsNoConfirmation(t *testing.T) {
	be, _ := useFakeBackend(t)
	p := &answerPrompter{}
	usePrompter(t, p)

	_, stderr, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Outbound")
	require.NoError(t, err)

	assert.Empty(t, p.confirms)
	assert.Empty(t, be.gw.updates)
	assert.Contains(t, stderr, "[WARN] rg-web/web-nsg: "+nsg.ReasonDirectionMismatch+" (existing rule is Inbound)")
	assert.Contains(t, stderr, "Direction mismatches:")
}

func TestReconcile_CreateRefusedWithoutRequiredFields(t *testing.T) {
	be, _ := useFakeBackend(t)

	_, stderr, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound",
		"--access", "Allow", "--create-if-not-exists", "--yes")
	require.NoError(t, err)

	assert.Empty(t, be.gw.creates)
	assert.Contains(t, stderr, "[REFUSED] rg-db/db-nsg: creation refused")
	assert.Contains(t, stderr, "Creations refused:")
}

func TestReconcile_ConfirmationAccepted(t *testing.T) {
	be, _ := useFakeBackend(t)
	p := &answerPrompter{confirm: true}
	usePrompter(t, p)

	_, _, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound",
		"--description", "ssh from bastion", "--update-existing")
	require.NoError(t, err)

	require.Len(t, p.confirms, 1)
	assert.Contains(t, p.confirms[0], `Apply rule "AllowSSH" to 2 NSG(s) in subscription prod`)
	assert.Equal(t, []string{"rg-web/web-nsg"}, be.gw.updates)
}

func TestReconcile_ConfirmationDeclined(t *testing.T) {
	be, _ := useFakeBackend(t)
	usePrompter(t, &answerPrompter{confirm: false})

	_, _, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound",
		"--description", "ssh", "--update-existing")
	require.Error(t, err)

	assert.ErrorIs(t, err, wizard.ErrDeclined)
	assert.Equal(t, exitcode.Fatal, exitcode.Of(err))
	assert.Empty(t, be.gw.updates)
}

func TestReconcile_CIModeRequiresYes(t *testing.T) {
	_, calls := useFakeBackend(t)

	_, _, err := executeCommand(t, "reconcile", "--ci", "--name", "AllowSSH", "--direction", "Inbound",
		"--create-if-not-exists")
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.Of(err))
	assert.Equal(t, 0, *calls, "nothing is contacted before the usage check")
}

func TestReconcile_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing name", []string{"--direction", "Inbound"}},
		{"missing direction", []string{"--name", "AllowSSH"}},
		{"bad direction", []string{"--name", "AllowSSH", "--direction", "sideways"}},
		{"bad access", []string{"--name", "AllowSSH", "--direction", "Inbound", "--access", "maybe"}},
		{"bad protocol", []string{"--name", "AllowSSH", "--direction", "Inbound", "--protocol", "gre"}},
		{"priority out of range", []string{"--name", "AllowSSH", "--direction", "Inbound", "--priority", "50"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, calls := useFakeBackend(t)
			_, _, err := executeCommand(t, append([]string{"reconcile"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, exitcode.Usage, exitcode.Of(err))
			assert.Equal(t, 0, *calls)
		})
	}
}

func TestReconcile_NoGroupsIsFatal(t *testing.T) {
	useFakeBackend(t)

	_, _, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound", "--nsg-filter", "nope-*")
	require.Error(t, err)
	assert.ErrorIs(t, err, nsg.ErrNoGroups)
	assert.Equal(t, exitcode.Fatal, exitcode.Of(err))
}

func TestReconcile_AuthFailureIsFatal(t *testing.T) {
	be, _ := useFakeBackend(t)
	be.session.authErr = &azauth.AuthError{}

	_, _, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound")
	require.Error(t, err)
	var authErr *azauth.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Equal(t, exitcode.Fatal, exitcode.Of(err))
}

func TestReconcile_GroupFailureDoesNotStopRun(t *testing.T) {
	be, _ := useFakeBackend(t)
	be.gw.getErr[webGroup.String()] = errors.New("AuthorizationFailed")

	_, stderr, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound",
		"--access", "Allow", "--protocol", "Tcp", "--priority", "300", "--create-if-not-exists", "--yes")
	require.NoError(t, err)

	assert.Contains(t, stderr, `[FAIL] get rule "AllowSSH" in web-nsg (resource group rg-web): AuthorizationFailed`)
	require.Len(t, be.gw.creates, 1)
	assert.Equal(t, "AllowSSH", be.gw.creates[0].Name)
	assert.Equal(t, []string{"*"}, be.gw.creates[0].SourceAddressPrefixes)
}

func TestReconcile_JSONOutput(t *testing.T) {
	useFakeBackend(t)

	stdout, stderr, err := executeCommand(t, "--json", "reconcile", "--name", "AllowSSH", "--direction", "Inbound",
		"--priority", "350", "--update-existing", "--yes")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "Summary for rule")

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			Subscription azauth.Subscription `json:"subscription"`
			Rule         string              `json:"rule"`
			Counters     nsg.RunCounters     `json:"counters"`
			Results      []struct {
				Group       nsg.SecurityGroup `json:"group"`
				Match       string            `json:"match"`
				Disposition string            `json:"disposition"`
			} `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &envelope))
	assert.Equal(t, "ok", envelope.Status)
	assert.Equal(t, "prod", envelope.Data.Subscription.Name)
	assert.Equal(t, "AllowSSH", envelope.Data.Rule)
	assert.Equal(t, 2, envelope.Data.Counters.Checked)
	assert.Equal(t, 1, envelope.Data.Counters.Updated)
	assert.Equal(t, 1, envelope.Data.Counters.Skipped)
	require.Len(t, envelope.Data.Results, 2)
	assert.Equal(t, "updated", envelope.Data.Results[0].Disposition)
	assert.Equal(t, "rg-db", envelope.Data.Results[1].Group.ResourceGroup)
}

func TestReconcile_RuleFileWithFlagOverride(t *testing.T) {
	be, _ := useFakeBackend(t)
	path := filepath.Join(t.TempDir(), "rule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`apiVersion: nsgctl/v1
kind: SecurityRule
rule:
  name: AllowSSH
  direction: Inbound
  sourceAddressPrefixes: ["10.0.0.0/8"]
  description: from file
policy:
  updateExisting: true
target:
  subscription: prod
  nsgFilter: web-*
`), 0o644))

	_, _, err := executeCommand(t, "reconcile", "--rule-file", path,
		"--source-address-prefixes", "192.168.0.0/16", "--yes")
	require.NoError(t, err)

	assert.Equal(t, "prod", be.session.asked)
	assert.Equal(t, []string{"rg-web/web-nsg"}, be.gw.updates)
	require.Len(t, be.gw.changes, 1)
	src, ok := be.gw.changes[0].Get(nsg.FieldSourceAddressPrefixes)
	require.True(t, ok)
	assert.Equal(t, []string{"192.168.0.0/16"}, src.Values)
	desc, ok := be.gw.changes[0].Get(nsg.FieldDescription)
	require.True(t, ok)
	assert.Equal(t, "from file", desc.Value())
}

func TestReconcile_InvalidRuleFileIsUsageError(t *testing.T) {
	_, calls := useFakeBackend(t)

	_, _, err := executeCommand(t, "reconcile", "--rule-file", filepath.Join("..", "test", "fixtures", "rules", "invalid.yaml"))
	require.Error(t, err)
	var invalid *config.InvalidError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, exitcode.Usage, exitcode.Of(err))
	assert.Equal(t, 0, *calls)
}

func TestReconcile_SubscriptionFromEnvironment(t *testing.T) {
	be, _ := useFakeBackend(t)
	t.Setenv("NSGCTL_SUBSCRIPTION", "staging")

	_, _, err := executeCommand(t, "reconcile", "--name", "AllowSSH", "--direction", "Inbound")
	require.NoError(t, err)
	assert.Equal(t, "staging", be.session.asked)
}

func TestDefaultBackend_RejectsUnknown(t *testing.T) {
	_, err := defaultBackend("terraform", azauth.Options{})
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.Of(err))

	be, err := defaultBackend("CLI", azauth.Options{})
	require.NoError(t, err)
	assert.IsType(t, &cliBackend{}, be)
}

// ── Init command ────────────────────────────────────────────

func TestInitCmd_WritesRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deny-telnet.yaml")
	usePrompter(t, &answerPrompter{
		inputs: map[string]string{
			"Rule name": "DenyTelnet",
			"Destination port ranges (comma-separated)": "23",
			"Priority (100-4096, blank to leave unchanged)": "4000",
			"NSG name filter (glob, blank for all)":         "prod-*",
		},
		selects: map[string]string{"Access": "Deny", "Protocol": "Tcp"},
		multi:   map[string][]string{"Write policy": {wizard.PolicyCreate}},
	})

	_, stderr, err := executeCommand(t, "init", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Rule file written to "+path)

	rf, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DenyTelnet", rf.Rule.Name)
	assert.Equal(t, "Inbound", rf.Rule.Direction)
	assert.Equal(t, []string{"23"}, rf.Rule.DestinationPortRanges)
	assert.Equal(t, 4000, rf.Rule.Priority)
	assert.True(t, rf.Policy.CreateIfNotExists)
	assert.False(t, rf.Policy.UpdateExisting)
	assert.Equal(t, "prod-*", rf.Target.NSGFilter)
}

func TestInitCmd_RefusesOverwriteWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rule.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rule: {}\n"), 0o644))
	usePrompter(t, &answerPrompter{inputs: map[string]string{"Rule name": "X"}})

	_, _, err := executeCommand(t, "init", path)
	require.Error(t, err)
	var cliErr *output.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Contains(t, cliErr.Fix, "--force")
}

func TestInitCmd_RefusedInCIMode(t *testing.T) {
	_, _, err := executeCommand(t, "init", "--ci", filepath.Join(t.TempDir(), "rule.yaml"))
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.Of(err))
}

// ── Schema command ──────────────────────────────────────────

func TestSchemaExport_Stdout(t *testing.T) {
	stdout, _, err := executeCommand(t, "schema", "export")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"$schema"`)
	assert.Contains(t, stdout, "priority")
}

func TestSchemaExport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "schema.json")
	_, _, err := executeCommand(t, "schema", "export", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.GetSchema(), data)
}

func TestSchemaValidate(t *testing.T) {
	fixtures := filepath.Join("..", "test", "fixtures", "rules")

	_, stderr, err := executeCommand(t, "schema", "validate", filepath.Join(fixtures, "allow-ssh.yaml"))
	require.NoError(t, err)
	assert.Contains(t, stderr, "is valid")

	_, stderr, err = executeCommand(t, "schema", "validate", filepath.Join(fixtures, "invalid.yaml"))
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.Of(err))
	assert.Contains(t, stderr, "[FAIL]")
}

// ── Doctor command ──────────────────────────────────────────

type doctorExecutor struct{ fail bool }

func (e doctorExecutor) Run(context.Context, string, ...string) (string, error) {
	if e.fail {
		return "", errors.New("exec: az not found")
	}
	return "", nil
}

func TestDoctorCmd_FailureExitCode(t *testing.T) {
	original := newExecutor
	newExecutor = func() doctor.CmdExecutor { return doctorExecutor{fail: true} }
	t.Cleanup(func() { newExecutor = original })

	_, stderr, err := executeCommand(t, "doctor")
	require.Error(t, err)
	assert.Equal(t, exitcode.Fatal, exitcode.Of(err))
	assert.Contains(t, stderr, "Required Tools")
}
