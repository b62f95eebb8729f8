package nsg

import "context"

// RunCounters aggregates the dispositions of one run.
type RunCounters struct {
	Checked    int `json:"checked"`
	Found      int `json:"found"`
	Mismatched int `json:"mismatched"`
	Unchanged  int `json:"unchanged"`
	Updated    int `json:"updated"`
	Created    int `json:"created"`
	Skipped    int `json:"skipped"`
	Refused    int `json:"refused"`
	Failed     int `json:"failed"`
}

// Terminal returns the number of groups that reached a disposition. It
// equals Checked once a run completes.
func (c RunCounters) Terminal() int {
	return c.Mismatched + c.Unchanged + c.Updated + c.Created + c.Skipped + c.Refused + c.Failed
}

func (c *RunCounters) record(r GroupResult) {
	c.Checked++
	if r.Match == FoundMatching {
		c.Found++
	}
	switch r.Disposition {
	case DispositionMismatched:
		c.Mismatched++
	case DispositionUnchanged:
		c.Unchanged++
	case DispositionUpdated:
		c.Updated++
	case DispositionCreated:
		c.Created++
	case DispositionSkipped:
		c.Skipped++
	case DispositionRefused:
		c.Refused++
	default:
		c.Failed++
	}
}

// GroupResult is the per-group record of a run.
type GroupResult struct {
	Group    SecurityGroup `json:"group"`
	Match    MatchResult   `json:"match"`
	Existing *ExistingRule `json:"-"`
	Decision Decision      `json:"decision"`
	Outcome
	Error string `json:"error,omitempty"`
}

// Report is the result of a completed run.
type Report struct {
	Rule      string        `json:"rule"`
	Direction Direction     `json:"direction"`
	Policy    Policy        `json:"policy"`
	Changes   DiffSet       `json:"changes,omitempty"`
	Counters  RunCounters   `json:"counters"`
	Results   []GroupResult `json:"results"`
}

// UpdateRequested reports whether this run asked for updates at all.
func (r Report) UpdateRequested() bool {
	return r.Policy.UpdateExisting && !r.Changes.Empty()
}

// SummaryLine is one row of the end-of-run summary.
type SummaryLine struct {
	Label string
	Value int
	Level string // "info", "success", "warn" or "error"
}

// Summary returns the summary rows. Rows are derived only from the counters
// and the policy of the run.
func (r Report) Summary() []SummaryLine {
	c := r.Counters
	lines := []SummaryLine{
		{Label: "NSGs checked", Value: c.Checked, Level: "info"},
		{Label: "Rules found", Value: c.Found, Level: "info"},
	}
	if c.Mismatched > 0 {
		lines = append(lines, SummaryLine{Label: "Direction mismatches", Value: c.Mismatched, Level: "warn"})
	}
	if r.UpdateRequested() {
		lines = append(lines, SummaryLine{Label: "Rules updated", Value: c.Updated, Level: "success"})
	}
	if r.Policy.CreateIfNotExists {
		lines = append(lines, SummaryLine{Label: "Rules created", Value: c.Created, Level: "success"})
	}
	if c.Refused > 0 {
		lines = append(lines, SummaryLine{Label: "Creations refused", Value: c.Refused, Level: "warn"})
	}
	failLevel := "info"
	if c.Failed > 0 {
		failLevel = "error"
	}
	lines = append(lines, SummaryLine{Label: "Failures", Value: c.Failed, Level: failLevel})
	return lines
}

// Options configures a Reconciler.
type Options struct {
	Policy Policy
	// OnResult, if set, is called after each group completes.
	OnResult func(GroupResult)
}

// Reconciler runs one desired rule across a list of groups.
type Reconciler struct {
	gateway  Gateway
	desired  RuleDescriptor
	diff     DiffSet
	resolver *Resolver
	opts     Options
}

// NewReconciler validates desired, builds its DiffSet and returns a
// reconciler ready to run.
func NewReconciler(gw Gateway, desired RuleDescriptor, opts Options) (*Reconciler, error) {
	if err := desired.Validate(); err != nil {
		return nil, err
	}
	diff, err := BuildDiff(desired)
	if err != nil {
		return nil, err
	}
	return &Reconciler{
		gateway:  gw,
		desired:  desired,
		diff:     diff,
		resolver: NewResolver(gw, desired, diff, opts.Policy),
		opts:     opts,
	}, nil
}

// Diff returns the changes applied to matching rules.
func (r *Reconciler) Diff() DiffSet { return r.diff }

// Run processes groups sequentially, in order. Group failures are recorded
// and never stop the run.
func (r *Reconciler) Run(ctx context.Context, groups []SecurityGroup) Report {
	report := Report{
		Rule:      r.desired.Name,
		Direction: r.desired.Direction,
		Policy:    r.opts.Policy,
		Changes:   r.diff,
		Results:   make([]GroupResult, 0, len(groups)),
	}
	for _, g := range groups {
		res := r.reconcileGroup(ctx, g)
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		report.Counters.record(res)
		report.Results = append(report.Results, res)
		if r.opts.OnResult != nil {
			r.opts.OnResult(res)
		}
	}
	return report
}

func (r *Reconciler) reconcileGroup(ctx context.Context, g SecurityGroup) GroupResult {
	existing, err := r.gateway.GetRule(ctx, g, r.desired.Name)
	if err != nil {
		return GroupResult{
			Group: g,
			Outcome: Outcome{
				Disposition: DispositionFailed,
				Err:         &GroupError{Group: g, Op: OpGet, Rule: r.desired.Name, Err: err},
			},
		}
	}

	match := Match(existing, r.desired.Direction)
	decision := r.resolver.Decide(match)
	return GroupResult{
		Group:    g,
		Match:    match,
		Existing: existing,
		Decision: decision,
		Outcome:  r.resolver.Execute(ctx, g, decision),
	}
}
