package azure

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asukhov/nsgctl/internal/nsg"
)

type fakeCLI struct {
	responses map[string]any
	errors    map[string]error
	calls     []string
}

func (f *fakeCLI) RunJSON(_ context.Context, args ...string) (any, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	if v, ok := f.responses[key]; ok {
		return v, nil
	}
	return []any{}, nil
}

var webGroup = nsg.SecurityGroup{Name: "web-nsg", ResourceGroup: "rg-web", Location: "westeurope"}

func TestCLIGateway_ListGroups(t *testing.T) {
	cli := &fakeCLI{responses: map[string]any{
		"network nsg list --subscription sub1": []any{
			map[string]any{"id": "/subscriptions/sub1/resourceGroups/rg-web/providers/Microsoft.Network/networkSecurityGroups/web-nsg", "name": "web-nsg", "resourceGroup": "rg-web", "location": "westeurope"},
			map[string]any{"name": "db-nsg", "resourceGroup": "rg-db", "location": "westeurope"},
			map[string]any{"resourceGroup": "rg-broken"},
		},
	}}
	gw := NewCLIGateway(cli, " sub1 ")

	all, err := gw.ListGroups(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "web-nsg", all[0].Name)
	assert.Equal(t, "rg-web", all[0].ResourceGroup)
	assert.Equal(t, "db-nsg", all[1].Name)

	web, err := gw.ListGroups(context.Background(), "web-*")
	require.NoError(t, err)
	require.Len(t, web, 1)
	assert.Equal(t, "web-nsg", web[0].Name)
}

func TestCLIGateway_ListGroupsError(t *testing.T) {
	cli := &fakeCLI{errors: map[string]error{"network nsg list": fmt.Errorf("not logged in")}}
	_, err := NewCLIGateway(cli, "").ListGroups(context.Background(), "")
	assert.Error(t, err)
}

func TestCLIGateway_GetRule(t *testing.T) {
	cli := &fakeCLI{responses: map[string]any{
		"network nsg rule list --resource-group rg-web --nsg-name web-nsg": []any{
			map[string]any{"name": "AllowDNS", "direction": "Outbound"},
			map[string]any{
				"name":                       "AllowHTTPS",
				"direction":                  "Inbound",
				"access":                     "Allow",
				"protocol":                   "Tcp",
				"priority":                   float64(200),
				"sourceAddressPrefix":        "Internet",
				"sourceAddressPrefixes":      []any{},
				"sourcePortRange":            "*",
				"destinationAddressPrefix":   "",
				"destinationAddressPrefixes": []any{"10.0.0.4", "10.0.0.5"},
				"destinationPortRanges":      []any{"443"},
				"description":                "web",
				"provisioningState":          "Succeeded",
			},
		},
	}}
	gw := NewCLIGateway(cli, "")

	rule, err := gw.GetRule(context.Background(), webGroup, "allowhttps")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, nsg.Inbound, rule.Direction)
	assert.Equal(t, nsg.Allow, rule.Access)
	assert.Equal(t, 200, rule.Priority)
	assert.Equal(t, []string{"Internet"}, rule.SourceAddressPrefixes)
	assert.Equal(t, []string{"*"}, rule.SourcePortRanges)
	assert.Equal(t, []string{"10.0.0.4", "10.0.0.5"}, rule.DestinationAddressPrefixes)
	assert.Equal(t, []string{"443"}, rule.DestinationPortRanges)

	missing, err := gw.GetRule(context.Background(), webGroup, "AllowSSH")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCLIGateway_UpdateRuleSendsOnlyChanges(t *testing.T) {
	cli := &fakeCLI{}
	gw := NewCLIGateway(cli, "sub1")

	diff, err := nsg.BuildDiff(nsg.RuleDescriptor{
		Name:                  "AllowHTTPS",
		Direction:             nsg.Inbound,
		DestinationPortRanges: []string{"443", "8443"},
		Priority:              210,
	})
	require.NoError(t, err)
	require.NoError(t, gw.UpdateRule(context.Background(), webGroup, "AllowHTTPS", diff))

	require.Len(t, cli.calls, 1)
	assert.Equal(t,
		"network nsg rule update --resource-group rg-web --nsg-name web-nsg --name AllowHTTPS "+
			"--destination-port-ranges 443 8443 --priority 210 --subscription sub1",
		cli.calls[0])
}

func TestCLIGateway_CreateRule(t *testing.T) {
	cli := &fakeCLI{}
	gw := NewCLIGateway(cli, "")

	spec, err := nsg.NewCreateSpec(nsg.RuleDescriptor{
		Name: "AllowSSH", Direction: nsg.Inbound, Access: nsg.Allow, Protocol: nsg.ProtocolTCP, Priority: 100,
		DestinationPortRanges: []string{"22"},
	})
	require.NoError(t, err)
	require.NoError(t, gw.CreateRule(context.Background(), webGroup, spec))

	require.Len(t, cli.calls, 1)
	call := cli.calls[0]
	assert.True(t, strings.HasPrefix(call, "network nsg rule create --resource-group rg-web --nsg-name web-nsg --name AllowSSH"))
	assert.Contains(t, call, "--direction Inbound --access Allow --protocol Tcp --priority 100")
	assert.Contains(t, call, "--source-address-prefixes * --source-port-ranges *")
	assert.Contains(t, call, "--destination-address-prefixes * --destination-port-ranges 22")
	assert.NotContains(t, call, "--description")
}

func TestCLIGateway_CreateRuleError(t *testing.T) {
	spec := nsg.CreateSpec{Name: "r", Direction: nsg.Inbound, Access: nsg.Deny, Protocol: nsg.ProtocolAny, Priority: 4000,
		SourceAddressPrefixes: []string{"*"}, SourcePortRanges: []string{"*"},
		DestinationAddressPrefixes: []string{"*"}, DestinationPortRanges: []string{"*"}, Description: "deny all"}
	key := "network nsg rule create --resource-group rg-web --nsg-name web-nsg --name r --direction Inbound --access Deny " +
		"--protocol * --priority 4000 --source-address-prefixes * --source-port-ranges * " +
		"--destination-address-prefixes * --destination-port-ranges * --description deny all"
	cli := &fakeCLI{errors: map[string]error{key: fmt.Errorf("SecurityRuleConflict")}}

	err := NewCLIGateway(cli, "").CreateRule(context.Background(), webGroup, spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SecurityRuleConflict")
}

func TestAzCLI_RunJSON(t *testing.T) {
	var gotName string
	var gotArgs []string
	cli := NewAzCLIWithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte(`[{"name":"web-nsg"}]`), nil
	})

	out, err := cli.RunJSON(context.Background(), "network", "nsg", "list")
	require.NoError(t, err)
	assert.Equal(t, "az", gotName)
	assert.Equal(t, []string{"network", "nsg", "list", "--output", "json"}, gotArgs)
	assert.Len(t, asSlice(out), 1)
}

func TestAzCLI_RunJSONErrors(t *testing.T) {
	failing := NewAzCLIWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, fmt.Errorf("exit status 1")
	})
	_, err := failing.RunJSON(context.Background(), "network", "nsg", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "az network nsg list")

	garbage := NewAzCLIWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json"), nil
	})
	_, err = garbage.RunJSON(context.Background(), "network", "nsg", "list")
	assert.Error(t, err)

	empty := NewAzCLIWithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("  \n"), nil
	})
	out, err := empty.RunJSON(context.Background(), "network", "nsg", "rule", "update")
	require.NoError(t, err)
	assert.Nil(t, out)
}
