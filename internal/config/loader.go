package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/asukhov/nsgctl/internal/nsg"
)

// Load reads a rule file, validates it against the embedded schema and
// parses it into a RuleFile.
func Load(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file %s: %w", path, err)
	}
	result, err := ValidateYAML(data)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &InvalidError{Path: path, Errors: result.Errors}
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into a RuleFile and applies defaults. It does
// not validate.
func Parse(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule file YAML: %w", err)
	}
	ApplyDefaults(&rf)
	return &rf, nil
}

// Descriptor converts the rule section to a nsg.RuleDescriptor. Enumerated
// values are parsed case-insensitively.
func (rf *RuleFile) Descriptor() (nsg.RuleDescriptor, error) {
	r := rf.Rule
	dir, err := nsg.ParseDirection(r.Direction)
	if err != nil {
		return nsg.RuleDescriptor{}, err
	}
	access, err := nsg.ParseAccess(r.Access)
	if err != nil {
		return nsg.RuleDescriptor{}, err
	}
	proto, err := nsg.ParseProtocol(r.Protocol)
	if err != nil {
		return nsg.RuleDescriptor{}, err
	}
	return nsg.RuleDescriptor{
		Name:                       r.Name,
		Direction:                  dir,
		Access:                     access,
		Protocol:                   proto,
		SourceAddressPrefixes:      r.SourceAddressPrefixes,
		SourcePortRanges:           r.SourcePortRanges,
		DestinationAddressPrefixes: r.DestinationAddressPrefixes,
		DestinationPortRanges:      r.DestinationPortRanges,
		Priority:                   r.Priority,
		Description:                r.Description,
	}, nil
}
