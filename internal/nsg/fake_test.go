package nsg

import (
	"context"
	"fmt"
)

// fakeGateway is an in-memory Gateway keyed by "rg/nsg".
type fakeGateway struct {
	groups  []SecurityGroup
	rules   map[string]*ExistingRule
	listErr error
	getErr  map[string]error
	updErr  map[string]error
	crtErr  map[string]error

	updates []string
	creates []CreateSpec
	calls   []string
}

func newFakeGateway(groups ...SecurityGroup) *fakeGateway {
	return &fakeGateway{
		groups: groups,
		rules:  map[string]*ExistingRule{},
		getErr: map[string]error{},
		updErr: map[string]error{},
		crtErr: map[string]error{},
	}
}

func (f *fakeGateway) ListGroups(_ context.Context, filter string) ([]SecurityGroup, error) {
	f.calls = append(f.calls, "list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []SecurityGroup
	for _, g := range f.groups {
		if MatchName(filter, g.Name) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGateway) GetRule(_ context.Context, g SecurityGroup, name string) (*ExistingRule, error) {
	f.calls = append(f.calls, "get "+g.String())
	if err := f.getErr[g.String()]; err != nil {
		return nil, err
	}
	r, ok := f.rules[g.String()]
	if !ok || r.Name != name {
		return nil, nil
	}
	return r, nil
}

func (f *fakeGateway) UpdateRule(_ context.Context, g SecurityGroup, name string, changes DiffSet) error {
	f.calls = append(f.calls, "update "+g.String())
	if err := f.updErr[g.String()]; err != nil {
		return err
	}
	f.updates = append(f.updates, fmt.Sprintf("%s:%s:%v", g, name, changes))
	return nil
}

func (f *fakeGateway) CreateRule(_ context.Context, g SecurityGroup, spec CreateSpec) error {
	f.calls = append(f.calls, "create "+g.String())
	if err := f.crtErr[g.String()]; err != nil {
		return err
	}
	f.creates = append(f.creates, spec)
	return nil
}

func (f *fakeGateway) mutations() int {
	return len(f.updates) + len(f.creates)
}

func group(rg, name string) SecurityGroup {
	return SecurityGroup{Name: name, ResourceGroup: rg, Location: "westeurope"}
}
