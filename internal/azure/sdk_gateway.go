package azure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork/v6"

	"github.com/asukhov/nsgctl/internal/nsg"
)

// SDKGateway implements nsg.Gateway with the ARM network SDK.
type SDKGateway struct {
	groups *armnetwork.SecurityGroupsClient
	rules  *armnetwork.SecurityRulesClient
}

// NewSDKGateway returns a gateway for one subscription.
func NewSDKGateway(subscriptionID string, cred azcore.TokenCredential, opts *arm.ClientOptions) (*SDKGateway, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("subscription ID is required")
	}
	factory, err := armnetwork.NewClientFactory(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("creating network client: %w", err)
	}
	return &SDKGateway{
		groups: factory.NewSecurityGroupsClient(),
		rules:  factory.NewSecurityRulesClient(),
	}, nil
}

// ListGroups pages through every NSG in the subscription, keeping those
// whose name matches filter.
func (g *SDKGateway) ListGroups(ctx context.Context, filter string) ([]nsg.SecurityGroup, error) {
	var out []nsg.SecurityGroup
	pager := g.groups.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, sg := range page.Value {
			if sg == nil || sg.Name == nil || !nsg.MatchName(filter, *sg.Name) {
				continue
			}
			group := nsg.SecurityGroup{
				ID:       deref(sg.ID),
				Name:     *sg.Name,
				Location: deref(sg.Location),
			}
			if group.ID != "" {
				rid, err := arm.ParseResourceID(group.ID)
				if err != nil {
					return nil, fmt.Errorf("parsing NSG id %q: %w", group.ID, err)
				}
				group.ResourceGroup = rid.ResourceGroupName
			}
			out = append(out, group)
		}
	}
	return out, nil
}

// GetRule fetches the named rule. A 404 is reported as (nil, nil).
func (g *SDKGateway) GetRule(ctx context.Context, group nsg.SecurityGroup, name string) (*nsg.ExistingRule, error) {
	resp, err := g.rules.Get(ctx, group.ResourceGroup, group.Name, name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return ruleFromSDK(&resp.SecurityRule), nil
}

// UpdateRule reads the rule, applies changes to it and writes it back.
// Fields not in changes keep their current values.
func (g *SDKGateway) UpdateRule(ctx context.Context, group nsg.SecurityGroup, name string, changes nsg.DiffSet) error {
	resp, err := g.rules.Get(ctx, group.ResourceGroup, group.Name, name, nil)
	if err != nil {
		return err
	}
	rule := resp.SecurityRule
	if rule.Properties == nil {
		rule.Properties = &armnetwork.SecurityRulePropertiesFormat{}
	}
	if err := applyChanges(rule.Properties, changes); err != nil {
		return err
	}
	return g.put(ctx, group, name, armnetwork.SecurityRule{Properties: rule.Properties})
}

// CreateRule creates the rule described by spec.
func (g *SDKGateway) CreateRule(ctx context.Context, group nsg.SecurityGroup, spec nsg.CreateSpec) error {
	props := &armnetwork.SecurityRulePropertiesFormat{
		Direction: to.Ptr(armnetwork.SecurityRuleDirection(spec.Direction)),
		Access:    to.Ptr(armnetwork.SecurityRuleAccess(spec.Access)),
		Protocol:  to.Ptr(armnetwork.SecurityRuleProtocol(spec.Protocol)),
		Priority:  to.Ptr(int32(spec.Priority)),
	}
	setList(&props.SourceAddressPrefix, &props.SourceAddressPrefixes, spec.SourceAddressPrefixes)
	setList(&props.SourcePortRange, &props.SourcePortRanges, spec.SourcePortRanges)
	setList(&props.DestinationAddressPrefix, &props.DestinationAddressPrefixes, spec.DestinationAddressPrefixes)
	setList(&props.DestinationPortRange, &props.DestinationPortRanges, spec.DestinationPortRanges)
	if spec.Description != "" {
		props.Description = to.Ptr(spec.Description)
	}
	return g.put(ctx, group, spec.Name, armnetwork.SecurityRule{Properties: props})
}

func (g *SDKGateway) put(ctx context.Context, group nsg.SecurityGroup, name string, rule armnetwork.SecurityRule) error {
	poller, err := g.rules.BeginCreateOrUpdate(ctx, group.ResourceGroup, group.Name, name, rule, nil)
	if err != nil {
		return err
	}
	_, err = poller.PollUntilDone(ctx, nil)
	return err
}

func applyChanges(p *armnetwork.SecurityRulePropertiesFormat, changes nsg.DiffSet) error {
	for _, c := range changes {
		switch c.Field {
		case nsg.FieldAccess:
			p.Access = to.Ptr(armnetwork.SecurityRuleAccess(c.Value()))
		case nsg.FieldProtocol:
			p.Protocol = to.Ptr(armnetwork.SecurityRuleProtocol(c.Value()))
		case nsg.FieldSourceAddressPrefixes:
			setList(&p.SourceAddressPrefix, &p.SourceAddressPrefixes, c.Values)
		case nsg.FieldSourcePortRanges:
			setList(&p.SourcePortRange, &p.SourcePortRanges, c.Values)
		case nsg.FieldDestinationAddressPrefixes:
			setList(&p.DestinationAddressPrefix, &p.DestinationAddressPrefixes, c.Values)
		case nsg.FieldDestinationPortRanges:
			setList(&p.DestinationPortRange, &p.DestinationPortRanges, c.Values)
		case nsg.FieldPriority:
			n, err := strconv.ParseInt(c.Value(), 10, 32)
			if err != nil {
				return fmt.Errorf("invalid priority %q: %w", c.Value(), err)
			}
			p.Priority = to.Ptr(int32(n))
		case nsg.FieldDescription:
			p.Description = to.Ptr(c.Value())
		default:
			return fmt.Errorf("unsupported field %q", c.Field)
		}
	}
	return nil
}

// setList writes values to the singular field when there is exactly one and
// to the plural field otherwise. Azure rejects a rule with both set.
func setList(single **string, many *[]*string, values []string) {
	if len(values) == 1 {
		*single = to.Ptr(values[0])
		*many = nil
		return
	}
	*single = nil
	*many = to.SliceOfPtrs(values...)
}

func ruleFromSDK(r *armnetwork.SecurityRule) *nsg.ExistingRule {
	out := &nsg.ExistingRule{Name: deref(r.Name)}
	p := r.Properties
	if p == nil {
		return out
	}
	if p.Direction != nil {
		out.Direction = nsg.Direction(*p.Direction)
	}
	if p.Access != nil {
		out.Access = nsg.Access(*p.Access)
	}
	if p.Protocol != nil {
		out.Protocol = nsg.Protocol(*p.Protocol)
	}
	if p.Priority != nil {
		out.Priority = int(*p.Priority)
	}
	if p.ProvisioningState != nil {
		out.ProvisioningState = string(*p.ProvisioningState)
	}
	out.Description = deref(p.Description)
	out.SourceAddressPrefixes = listOf(p.SourceAddressPrefix, p.SourceAddressPrefixes)
	out.SourcePortRanges = listOf(p.SourcePortRange, p.SourcePortRanges)
	out.DestinationAddressPrefixes = listOf(p.DestinationAddressPrefix, p.DestinationAddressPrefixes)
	out.DestinationPortRanges = listOf(p.DestinationPortRange, p.DestinationPortRanges)
	return out
}

func listOf(single *string, many []*string) []string {
	if len(many) > 0 {
		out := make([]string, 0, len(many))
		for _, v := range many {
			out = append(out, deref(v))
		}
		return out
	}
	if s := deref(single); s != "" {
		return []string{s}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
