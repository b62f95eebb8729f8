package azure

import (
	"context"
	"strconv"
	"strings"

	"github.com/asukhov/nsgctl/internal/nsg"
)

// CLIGateway implements nsg.Gateway on top of `az network nsg`.
// Arguments are assembled from typed values and passed to the runner as a
// slice; no shell is involved.
type CLIGateway struct {
	cli          CLI
	subscription string
}

// NewCLIGateway returns a gateway scoped to subscription. An empty
// subscription uses the az CLI default.
func NewCLIGateway(cli CLI, subscription string) *CLIGateway {
	if cli == nil {
		cli = NewAzCLI()
	}
	return &CLIGateway{cli: cli, subscription: strings.TrimSpace(subscription)}
}

func (g *CLIGateway) scoped(args ...string) []string {
	if g.subscription != "" {
		args = append(args, "--subscription", g.subscription)
	}
	return args
}

// ListGroups lists every NSG in the subscription whose name matches filter.
func (g *CLIGateway) ListGroups(ctx context.Context, filter string) ([]nsg.SecurityGroup, error) {
	raw, err := g.cli.RunJSON(ctx, g.scoped("network", "nsg", "list")...)
	if err != nil {
		return nil, err
	}
	items := asSlice(raw)
	out := make([]nsg.SecurityGroup, 0, len(items))
	for _, item := range items {
		m := asMap(item)
		sg := nsg.SecurityGroup{
			ID:            asString(m["id"]),
			Name:          asString(m["name"]),
			ResourceGroup: asString(m["resourceGroup"]),
			Location:      asString(m["location"]),
		}
		if sg.Name == "" || !nsg.MatchName(filter, sg.Name) {
			continue
		}
		out = append(out, sg)
	}
	return out, nil
}

// GetRule lists the group's rules and picks the named one, so an absent rule
// is distinguishable from a failed call.
func (g *CLIGateway) GetRule(ctx context.Context, group nsg.SecurityGroup, name string) (*nsg.ExistingRule, error) {
	raw, err := g.cli.RunJSON(ctx, g.scoped(
		"network", "nsg", "rule", "list",
		"--resource-group", group.ResourceGroup,
		"--nsg-name", group.Name,
	)...)
	if err != nil {
		return nil, err
	}
	for _, item := range asSlice(raw) {
		m := asMap(item)
		if strings.EqualFold(asString(m["name"]), name) {
			return ruleFromJSON(m), nil
		}
	}
	return nil, nil
}

// UpdateRule sets only the fields present in changes.
func (g *CLIGateway) UpdateRule(ctx context.Context, group nsg.SecurityGroup, name string, changes nsg.DiffSet) error {
	args := []string{
		"network", "nsg", "rule", "update",
		"--resource-group", group.ResourceGroup,
		"--nsg-name", group.Name,
		"--name", name,
	}
	for _, c := range changes {
		args = append(args, "--"+string(c.Field))
		args = append(args, c.Values...)
	}
	_, err := g.cli.RunJSON(ctx, g.scoped(args...)...)
	return err
}

// CreateRule creates the rule described by spec.
func (g *CLIGateway) CreateRule(ctx context.Context, group nsg.SecurityGroup, spec nsg.CreateSpec) error {
	args := []string{
		"network", "nsg", "rule", "create",
		"--resource-group", group.ResourceGroup,
		"--nsg-name", group.Name,
		"--name", spec.Name,
		"--direction", string(spec.Direction),
		"--access", string(spec.Access),
		"--protocol", string(spec.Protocol),
		"--priority", strconv.Itoa(spec.Priority),
	}
	args = append(args, "--"+string(nsg.FieldSourceAddressPrefixes))
	args = append(args, spec.SourceAddressPrefixes...)
	args = append(args, "--"+string(nsg.FieldSourcePortRanges))
	args = append(args, spec.SourcePortRanges...)
	args = append(args, "--"+string(nsg.FieldDestinationAddressPrefixes))
	args = append(args, spec.DestinationAddressPrefixes...)
	args = append(args, "--"+string(nsg.FieldDestinationPortRanges))
	args = append(args, spec.DestinationPortRanges...)
	if spec.Description != "" {
		args = append(args, "--description", spec.Description)
	}
	_, err := g.cli.RunJSON(ctx, g.scoped(args...)...)
	return err
}

func ruleFromJSON(m map[string]any) *nsg.ExistingRule {
	return &nsg.ExistingRule{
		Name:                       asString(m["name"]),
		Direction:                  nsg.Direction(asString(m["direction"])),
		Access:                     nsg.Access(asString(m["access"])),
		Protocol:                   nsg.Protocol(asString(m["protocol"])),
		SourceAddressPrefixes:      mergedList(m, "sourceAddressPrefix", "sourceAddressPrefixes"),
		SourcePortRanges:           mergedList(m, "sourcePortRange", "sourcePortRanges"),
		DestinationAddressPrefixes: mergedList(m, "destinationAddressPrefix", "destinationAddressPrefixes"),
		DestinationPortRanges:      mergedList(m, "destinationPortRange", "destinationPortRanges"),
		Priority:                   asInt(m["priority"]),
		Description:                asString(m["description"]),
		ProvisioningState:          asString(m["provisioningState"]),
	}
}
