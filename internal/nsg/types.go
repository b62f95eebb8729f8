// Package nsg implements the reconciliation engine for a single named
// Network Security Group rule.
//
// The engine is split into four parts, each usable on its own:
//   - BuildDiff turns the desired rule into an ordered DiffSet
//   - Match classifies a fetched rule against the requested direction
//   - Resolve picks an Action from the match, the DiffSet and the Policy
//   - Reconciler drives the per-group loop and accumulates RunCounters
//
// Cloud access goes through the Gateway interface; this package never talks
// to Azure directly.
package nsg

import (
	"fmt"
	"strings"
)

// Direction is the traffic direction a rule applies to.
type Direction string

const (
	Inbound  Direction = "Inbound"
	Outbound Direction = "Outbound"
)

// Access is the verdict of a rule.
type Access string

const (
	Allow Access = "Allow"
	Deny  Access = "Deny"
)

// Protocol is the IP protocol a rule matches. ProtocolAny is the Azure
// wildcard "*".
type Protocol string

const (
	ProtocolTCP  Protocol = "Tcp"
	ProtocolUDP  Protocol = "Udp"
	ProtocolICMP Protocol = "Icmp"
	ProtocolESP  Protocol = "Esp"
	ProtocolAH   Protocol = "Ah"
	ProtocolAny  Protocol = "*"
)

// Wildcard is the value Azure uses for "any address" and "any port".
const Wildcard = "*"

// Priority bounds accepted by Azure for custom rules.
const (
	MinPriority = 100
	MaxPriority = 4096
)

// ParseDirection parses a direction case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inbound":
		return Inbound, nil
	case "outbound":
		return Outbound, nil
	}
	return "", fmt.Errorf("invalid direction %q (allowed: Inbound, Outbound)", s)
}

// ParseAccess parses an access verdict case-insensitively. An empty string
// yields the unset value.
func ParseAccess(s string) (Access, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "allow":
		return Allow, nil
	case "deny":
		return Deny, nil
	}
	return "", fmt.Errorf("invalid access %q (allowed: Allow, Deny)", s)
}

// ParseProtocol parses a protocol case-insensitively. "Any" and "*" both map
// to ProtocolAny. An empty string yields the unset value.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	case "icmp":
		return ProtocolICMP, nil
	case "esp":
		return ProtocolESP, nil
	case "ah":
		return ProtocolAH, nil
	case "any", "*":
		return ProtocolAny, nil
	}
	return "", fmt.Errorf("invalid protocol %q (allowed: Tcp, Udp, Icmp, Esp, Ah, Any)", s)
}

// RuleDescriptor is the desired state of the rule for one run.
type RuleDescriptor struct {
	Name      string
	Direction Direction

	Access                     Access
	Protocol                   Protocol
	SourceAddressPrefixes      []string
	SourcePortRanges           []string
	DestinationAddressPrefixes []string
	DestinationPortRanges      []string
	Priority                   int
	Description                string
}

// Validate checks the required fields.
func (d RuleDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if d.Direction != Inbound && d.Direction != Outbound {
		return fmt.Errorf("invalid direction %q (allowed: Inbound, Outbound)", d.Direction)
	}
	return nil
}

// ExistingRule is a rule as reported by the gateway.
type ExistingRule struct {
	Name                       string
	Direction                  Direction
	Access                     Access
	Protocol                   Protocol
	SourceAddressPrefixes      []string
	SourcePortRanges           []string
	DestinationAddressPrefixes []string
	DestinationPortRanges      []string
	Priority                   int
	Description                string
	ProvisioningState          string
}

// SecurityGroup identifies one network security group.
type SecurityGroup struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	ResourceGroup string `json:"resourceGroup"`
	Location      string `json:"location,omitempty"`
}

func (g SecurityGroup) String() string {
	return g.ResourceGroup + "/" + g.Name
}

// CreateSpec is the complete rule sent to the gateway on create.
type CreateSpec struct {
	Name                       string    `json:"name"`
	Direction                  Direction `json:"direction"`
	Access                     Access    `json:"access"`
	Protocol                   Protocol  `json:"protocol"`
	Priority                   int       `json:"priority"`
	SourceAddressPrefixes      []string  `json:"sourceAddressPrefixes"`
	SourcePortRanges           []string  `json:"sourcePortRanges"`
	DestinationAddressPrefixes []string  `json:"destinationAddressPrefixes"`
	DestinationPortRanges      []string  `json:"destinationPortRanges"`
	Description                string    `json:"description,omitempty"`
}

// MissingCreateFieldsError lists the fields a create needs but did not get.
type MissingCreateFieldsError struct {
	Fields []string
}

func (e *MissingCreateFieldsError) Error() string {
	return "missing required parameters: " + strings.Join(e.Fields, ", ")
}

// NewCreateSpec builds the create payload from the desired rule. Access,
// protocol and a positive priority are required; unset lists default to the
// wildcard.
func NewCreateSpec(d RuleDescriptor) (CreateSpec, error) {
	var missing []string
	if d.Access == "" {
		missing = append(missing, "access")
	}
	if d.Protocol == "" {
		missing = append(missing, "protocol")
	}
	if d.Priority <= 0 {
		missing = append(missing, "priority")
	}
	if len(missing) > 0 {
		return CreateSpec{}, &MissingCreateFieldsError{Fields: missing}
	}
	return CreateSpec{
		Name:                       d.Name,
		Direction:                  d.Direction,
		Access:                     d.Access,
		Protocol:                   d.Protocol,
		Priority:                   d.Priority,
		SourceAddressPrefixes:      orWildcard(d.SourceAddressPrefixes),
		SourcePortRanges:           orWildcard(d.SourcePortRanges),
		DestinationAddressPrefixes: orWildcard(d.DestinationAddressPrefixes),
		DestinationPortRanges:      orWildcard(d.DestinationPortRanges),
		Description:                d.Description,
	}, nil
}

func orWildcard(values []string) []string {
	if len(values) == 0 {
		return []string{Wildcard}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
