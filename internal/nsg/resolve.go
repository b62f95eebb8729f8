package nsg

import (
	"context"
	"errors"
)

// Action is what the resolver does for one group.
type Action string

const (
	ActionSkip       Action = "skip"
	ActionUpdate     Action = "update"
	ActionCreate     Action = "create"
	ActionReportOnly Action = "report-only"
)

// Disposition is the terminal outcome for one group. Every group ends in
// exactly one.
type Disposition string

const (
	DispositionUnchanged  Disposition = "unchanged"
	DispositionMismatched Disposition = "direction-mismatch"
	DispositionUpdated    Disposition = "updated"
	DispositionCreated    Disposition = "created"
	DispositionSkipped    Disposition = "skipped"
	DispositionRefused    Disposition = "refused"
	DispositionFailed     Disposition = "failed"
)

// Reasons attached to non-mutating decisions.
const (
	ReasonNoUpdates         = "no updates requested"
	ReasonUpdatesSkipped    = "updates skipped (use --update-existing to apply)"
	ReasonDirectionMismatch = "rule exists with a different direction, left untouched"
	ReasonCreationSkipped   = "creation skipped (use --create-if-not-exists to create)"
)

// Policy holds the operator switches for a run.
type Policy struct {
	CreateIfNotExists bool `json:"createIfNotExists"`
	UpdateExisting    bool `json:"updateExisting"`
	DryRun            bool `json:"dryRun"`
}

// Decision is the resolved action for a group. Disposition is the outcome if
// the action succeeds.
type Decision struct {
	Action      Action      `json:"action"`
	Reason      string      `json:"reason,omitempty"`
	Disposition Disposition `json:"-"`
}

// Resolve applies the decision table. It has no side effects.
func Resolve(match MatchResult, diff DiffSet, desired RuleDescriptor, policy Policy) Decision {
	switch match {
	case FoundMatching:
		switch {
		case diff.Empty():
			return Decision{Action: ActionReportOnly, Reason: ReasonNoUpdates, Disposition: DispositionUnchanged}
		case policy.UpdateExisting:
			return Decision{Action: ActionUpdate, Disposition: DispositionUpdated}
		default:
			return Decision{Action: ActionSkip, Reason: ReasonUpdatesSkipped, Disposition: DispositionSkipped}
		}
	case FoundMismatch:
		return Decision{Action: ActionReportOnly, Reason: ReasonDirectionMismatch, Disposition: DispositionMismatched}
	}

	if !policy.CreateIfNotExists {
		return Decision{Action: ActionSkip, Reason: ReasonCreationSkipped, Disposition: DispositionSkipped}
	}
	if _, err := NewCreateSpec(desired); err != nil {
		return Decision{Action: ActionSkip, Reason: err.Error(), Disposition: DispositionRefused}
	}
	return Decision{Action: ActionCreate, Disposition: DispositionCreated}
}

// Outcome is the result of executing a Decision.
type Outcome struct {
	Disposition Disposition `json:"disposition"`
	Simulated   bool        `json:"simulated,omitempty"`
	Changes     DiffSet     `json:"changes,omitempty"`
	Create      *CreateSpec `json:"create,omitempty"`
	Err         error       `json:"-"`
}

// Resolver decides and executes actions against a gateway for one desired
// rule.
type Resolver struct {
	gateway Gateway
	desired RuleDescriptor
	diff    DiffSet
	policy  Policy
}

// NewResolver returns a resolver for desired. diff must come from
// BuildDiff(desired).
func NewResolver(gw Gateway, desired RuleDescriptor, diff DiffSet, policy Policy) *Resolver {
	return &Resolver{gateway: gw, desired: desired, diff: diff, policy: policy}
}

// Decide resolves the action for a match result.
func (r *Resolver) Decide(match MatchResult) Decision {
	return Resolve(match, r.diff, r.desired, r.policy)
}

// Execute carries out d for group. Under dry-run no mutating gateway call is
// made and the outcome is marked simulated.
func (r *Resolver) Execute(ctx context.Context, group SecurityGroup, d Decision) Outcome {
	switch d.Action {
	case ActionUpdate:
		out := Outcome{Disposition: d.Disposition, Changes: r.diff, Simulated: r.policy.DryRun}
		if r.policy.DryRun {
			return out
		}
		if err := r.gateway.UpdateRule(ctx, group, r.desired.Name, r.diff); err != nil {
			out.Disposition = DispositionFailed
			out.Err = &GroupError{Group: group, Op: OpUpdate, Rule: r.desired.Name, Err: err}
		}
		return out

	case ActionCreate:
		spec, err := NewCreateSpec(r.desired)
		if err != nil {
			// Resolve already refuses incomplete creates; guard against a
			// hand-built Decision.
			var missing *MissingCreateFieldsError
			if errors.As(err, &missing) {
				return Outcome{Disposition: DispositionRefused}
			}
			return Outcome{Disposition: DispositionFailed, Err: err}
		}
		out := Outcome{Disposition: d.Disposition, Create: &spec, Simulated: r.policy.DryRun}
		if r.policy.DryRun {
			return out
		}
		if err := r.gateway.CreateRule(ctx, group, spec); err != nil {
			out.Disposition = DispositionFailed
			out.Err = &GroupError{Group: group, Op: OpCreate, Rule: r.desired.Name, Err: err}
		}
		return out
	}

	return Outcome{Disposition: d.Disposition}
}
