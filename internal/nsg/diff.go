package nsg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Field names a mutable rule property. Values follow the az CLI flag names.
type Field string

const (
	FieldAccess                     Field = "access"
	FieldProtocol                   Field = "protocol"
	FieldSourceAddressPrefixes      Field = "source-address-prefixes"
	FieldSourcePortRanges           Field = "source-port-ranges"
	FieldDestinationAddressPrefixes Field = "destination-address-prefixes"
	FieldDestinationPortRanges      Field = "destination-port-ranges"
	FieldPriority                   Field = "priority"
	FieldDescription                Field = "description"
)

// IsList reports whether the field carries a list of values.
func (f Field) IsList() bool {
	switch f {
	case FieldSourceAddressPrefixes, FieldSourcePortRanges,
		FieldDestinationAddressPrefixes, FieldDestinationPortRanges:
		return true
	}
	return false
}

// ErrPriorityOutOfRange is returned when a specified priority is not in
// [MinPriority, MaxPriority].
var ErrPriorityOutOfRange = errors.New("priority out of range")

// FieldChange is one field to set on update. Scalar fields carry exactly one
// value.
type FieldChange struct {
	Field  Field    `json:"field"`
	Values []string `json:"values"`
}

// Value returns the scalar value of the change.
func (c FieldChange) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

func (c FieldChange) String() string {
	if c.Field.IsList() {
		return fmt.Sprintf("%s=[%s]", c.Field, strings.Join(c.Values, ","))
	}
	return fmt.Sprintf("%s=%s", c.Field, c.Value())
}

// DiffSet is the ordered list of field changes applied to every matching rule.
type DiffSet []FieldChange

// Empty reports whether no field was requested.
func (d DiffSet) Empty() bool { return len(d) == 0 }

// Fields returns the field names in order.
func (d DiffSet) Fields() []Field {
	out := make([]Field, 0, len(d))
	for _, c := range d {
		out = append(out, c.Field)
	}
	return out
}

// Get returns the change for f, if present.
func (d DiffSet) Get(f Field) (FieldChange, bool) {
	for _, c := range d {
		if c.Field == f {
			return c, true
		}
	}
	return FieldChange{}, false
}

// BuildDiff returns the changes for every specified optional field of the
// desired rule. Name and direction are identity, not changes.
func BuildDiff(desired RuleDescriptor) (DiffSet, error) {
	if desired.Priority > 0 && (desired.Priority < MinPriority || desired.Priority > MaxPriority) {
		return nil, fmt.Errorf("%w: %d (allowed: %d-%d)", ErrPriorityOutOfRange, desired.Priority, MinPriority, MaxPriority)
	}

	var diff DiffSet
	scalar := func(f Field, v string) {
		if v != "" {
			diff = append(diff, FieldChange{Field: f, Values: []string{v}})
		}
	}
	list := func(f Field, v []string) {
		if len(v) > 0 {
			values := make([]string, len(v))
			copy(values, v)
			diff = append(diff, FieldChange{Field: f, Values: values})
		}
	}

	scalar(FieldAccess, string(desired.Access))
	scalar(FieldProtocol, string(desired.Protocol))
	list(FieldSourceAddressPrefixes, desired.SourceAddressPrefixes)
	list(FieldSourcePortRanges, desired.SourcePortRanges)
	list(FieldDestinationAddressPrefixes, desired.DestinationAddressPrefixes)
	list(FieldDestinationPortRanges, desired.DestinationPortRanges)
	if desired.Priority > 0 {
		scalar(FieldPriority, strconv.Itoa(desired.Priority))
	}
	scalar(FieldDescription, desired.Description)

	return diff, nil
}

// SplitList splits comma-separated operator input and trims each element.
// An empty input is unset and yields nil. Empty segments are kept.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
