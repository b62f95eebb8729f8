package wizard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/asukhov/nsgctl/internal/config"
	"github.com/asukhov/nsgctl/internal/nsg"
)

// unchanged is the select option that leaves a field unspecified.
const unchanged = "(leave unchanged)"

// Policy options offered by the wizard.
const (
	PolicyCreate = "Create the rule where it is missing"
	PolicyUpdate = "Update the rule where it exists"
)

// RuleInput captures all inputs collected by the rule wizard.
type RuleInput struct {
	Name                       string
	Direction                  string
	Access                     string
	Protocol                   string
	SourceAddressPrefixes      string
	SourcePortRanges           string
	DestinationAddressPrefixes string
	DestinationPortRanges      string
	Priority                   string
	Description                string
	CreateIfNotExists          bool
	UpdateExisting             bool
	NSGFilter                  string
}

// ToRuleFile converts wizard input to a rule file. List inputs are split on
// commas the same way reconcile flags are.
func (in RuleInput) ToRuleFile() (*config.RuleFile, error) {
	rf := &config.RuleFile{
		Rule: config.Rule{
			Name:                       strings.TrimSpace(in.Name),
			Direction:                  in.Direction,
			SourceAddressPrefixes:      nsg.SplitList(in.SourceAddressPrefixes),
			SourcePortRanges:           nsg.SplitList(in.SourcePortRanges),
			DestinationAddressPrefixes: nsg.SplitList(in.DestinationAddressPrefixes),
			DestinationPortRanges:      nsg.SplitList(in.DestinationPortRanges),
			Description:                in.Description,
		},
		Policy: config.Policy{
			CreateIfNotExists: in.CreateIfNotExists,
			UpdateExisting:    in.UpdateExisting,
		},
		Target: config.Target{NSGFilter: in.NSGFilter},
	}
	if in.Access != unchanged {
		rf.Rule.Access = in.Access
	}
	if in.Protocol != unchanged {
		rf.Rule.Protocol = in.Protocol
	}
	if p := strings.TrimSpace(in.Priority); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid priority %q: %w", p, err)
		}
		rf.Rule.Priority = n
	}
	config.ApplyDefaults(rf)
	return rf, nil
}

// RuleWizard drives the interactive rule file flow.
type RuleWizard struct {
	prompter Prompter
}

// NewRuleWizard returns a rule wizard; if p is nil, survey is used.
func NewRuleWizard(p Prompter) *RuleWizard {
	if p == nil {
		p = NewSurveyPrompter()
	}
	return &RuleWizard{prompter: p}
}

// Run collects the rule fields, then the write policy and the NSG filter.
func (w *RuleWizard) Run() (*RuleInput, error) {
	in := &RuleInput{}
	var err error

	if in.Name, err = w.prompter.Input("Rule name", "", ValidateNonEmpty); err != nil {
		return nil, err
	}
	if in.Direction, err = w.prompter.Select("Direction", []string{string(nsg.Inbound), string(nsg.Outbound)}, string(nsg.Inbound)); err != nil {
		return nil, err
	}
	if in.Access, err = w.prompter.Select("Access", []string{unchanged, string(nsg.Allow), string(nsg.Deny)}, unchanged); err != nil {
		return nil, err
	}
	protocols := []string{unchanged, string(nsg.ProtocolTCP), string(nsg.ProtocolUDP), string(nsg.ProtocolICMP), string(nsg.ProtocolESP), string(nsg.ProtocolAH), string(nsg.ProtocolAny)}
	if in.Protocol, err = w.prompter.Select("Protocol", protocols, unchanged); err != nil {
		return nil, err
	}

	lists := []struct {
		label string
		dst   *string
	}{
		{"Source address prefixes (comma-separated)", &in.SourceAddressPrefixes},
		{"Source port ranges (comma-separated)", &in.SourcePortRanges},
		{"Destination address prefixes (comma-separated)", &in.DestinationAddressPrefixes},
		{"Destination port ranges (comma-separated)", &in.DestinationPortRanges},
	}
	for _, l := range lists {
		if *l.dst, err = w.prompter.Input(l.label, "", nil); err != nil {
			return nil, err
		}
	}

	if in.Priority, err = w.prompter.Input(fmt.Sprintf("Priority (%d-%d, blank to leave unchanged)", nsg.MinPriority, nsg.MaxPriority), "", ValidatePriority); err != nil {
		return nil, err
	}
	if in.Description, err = w.prompter.Input("Description", "", nil); err != nil {
		return nil, err
	}

	policy, err := w.prompter.MultiSelect("Write policy", []string{PolicyCreate, PolicyUpdate}, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range policy {
		switch p {
		case PolicyCreate:
			in.CreateIfNotExists = true
		case PolicyUpdate:
			in.UpdateExisting = true
		}
	}
	if in.CreateIfNotExists && (in.Access == unchanged || in.Protocol == unchanged || strings.TrimSpace(in.Priority) == "") {
		keep, err := w.prompter.Confirm("Creation needs access, protocol and priority; NSGs without the rule will be refused. Keep creation enabled?", false)
		if err != nil {
			return nil, err
		}
		in.CreateIfNotExists = keep
	}

	if in.NSGFilter, err = w.prompter.Input("NSG name filter (glob, blank for all)", "", nil); err != nil {
		return nil, err
	}
	return in, nil
}
