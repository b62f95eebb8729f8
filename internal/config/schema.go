// Package config provides the rule file schema, loader, validator and
// default values for nsgctl rule files: the declarative form of one
// reconcile invocation.
package config

// Current API version and kind of a rule file.
const (
	APIVersion = "nsgctl/v1"
	Kind       = "SecurityRule"
)

// RuleFile is the root struct matching a rule file.
type RuleFile struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"` // "nsgctl/v1"
	Kind       string `yaml:"kind" json:"kind"`             // "SecurityRule"
	Rule       Rule   `yaml:"rule" json:"rule"`
	Policy     Policy `yaml:"policy,omitempty" json:"policy,omitempty"`
	Target     Target `yaml:"target,omitempty" json:"target,omitempty"`
}

// Rule holds the desired fields of the security rule.
type Rule struct {
	Name                       string   `yaml:"name" json:"name"`
	Direction                  string   `yaml:"direction" json:"direction"`
	Access                     string   `yaml:"access,omitempty" json:"access,omitempty"`
	Protocol                   string   `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	SourceAddressPrefixes      []string `yaml:"sourceAddressPrefixes,omitempty" json:"sourceAddressPrefixes,omitempty"`
	SourcePortRanges           []string `yaml:"sourcePortRanges,omitempty" json:"sourcePortRanges,omitempty"`
	DestinationAddressPrefixes []string `yaml:"destinationAddressPrefixes,omitempty" json:"destinationAddressPrefixes,omitempty"`
	DestinationPortRanges      []string `yaml:"destinationPortRanges,omitempty" json:"destinationPortRanges,omitempty"`
	Priority                   int      `yaml:"priority,omitempty" json:"priority,omitempty"`
	Description                string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Policy holds the write policy. Both default to false, which makes a run
// report-only.
type Policy struct {
	CreateIfNotExists bool `yaml:"createIfNotExists,omitempty" json:"createIfNotExists,omitempty"`
	UpdateExisting    bool `yaml:"updateExisting,omitempty" json:"updateExisting,omitempty"`
}

// Target scopes the run.
type Target struct {
	Subscription string `yaml:"subscription,omitempty" json:"subscription,omitempty"`
	NSGFilter    string `yaml:"nsgFilter,omitempty" json:"nsgFilter,omitempty"`
}
