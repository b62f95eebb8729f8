package nsg

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Gateway is the cloud resource API used by the engine.
//
// GetRule returns (nil, nil) when the group has no rule of that name.
type Gateway interface {
	ListGroups(ctx context.Context, filter string) ([]SecurityGroup, error)
	GetRule(ctx context.Context, group SecurityGroup, name string) (*ExistingRule, error)
	UpdateRule(ctx context.Context, group SecurityGroup, name string, changes DiffSet) error
	CreateRule(ctx context.Context, group SecurityGroup, spec CreateSpec) error
}

// ErrNoGroups is returned when enumeration yields nothing to reconcile.
var ErrNoGroups = errors.New("no network security groups found")

// Operation names used in GroupError.
const (
	OpGet    = "get"
	OpUpdate = "update"
	OpCreate = "create"
)

// GroupError is a gateway failure scoped to one security group.
type GroupError struct {
	Group SecurityGroup
	Op    string
	Rule  string
	Err   error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("%s rule %q in %s (resource group %s): %v", e.Op, e.Rule, e.Group.Name, e.Group.ResourceGroup, e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// ListGroups enumerates the groups to reconcile. Failure and an empty result
// are both fatal for the run.
func ListGroups(ctx context.Context, gw Gateway, filter string) ([]SecurityGroup, error) {
	groups, err := gw.ListGroups(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing network security groups: %w", err)
	}
	if len(groups) == 0 {
		if filter != "" {
			return nil, fmt.Errorf("%w matching %q", ErrNoGroups, filter)
		}
		return nil, ErrNoGroups
	}
	return groups, nil
}

// MatchName reports whether a group name matches a glob pattern. Matching is
// case-insensitive because Azure resource names are. An empty pattern matches
// everything; a malformed pattern matches nothing.
func MatchName(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(name))
	return err == nil && ok
}
