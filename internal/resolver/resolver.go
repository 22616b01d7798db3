package resolver

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/premerge/internal/changes"
	"github.com/kingrea/premerge/internal/registry"
)

// ReasonKind records why a project or runtime appears in a plan.
type ReasonKind string

const (
	ReasonModified ReasonKind = "modified"
	ReasonTested   ReasonKind = "tested"
	ReasonBuilt    ReasonKind = "built"
	ReasonRuntime  ReasonKind = "runtime"
)

// Reason is the first rule that pulled a name into a plan. Via names the
// project whose rule fired; it is empty for modified projects.
type Reason struct {
	Kind ReasonKind
	Via  string
}

// Plan is the resolved work for one platform. All lists are sorted and free
// of duplicates.
type Plan struct {
	Platform            registry.Platform
	Tested              []string
	Projects            []string
	CheckTargets        []string
	Runtimes            []string
	RuntimeCheckTargets []string
	Excluded            []registry.Exclusion
	Reasons             map[string]Reason
}

// Empty reports whether the platform has nothing to build.
func (p Plan) Empty() bool {
	return len(p.Projects) == 0
}

// Result is the outcome of resolving one change.
type Result struct {
	// Directories are the distinct top-level directories touched.
	Directories []string
	// Modified are the registered projects among Directories.
	Modified []string
	// Ignored are Directories that are not registered projects.
	Ignored  []string
	Plans    []Plan
	Triggers []registry.Trigger
}

// Plan returns the plan for platform.
func (r Result) Plan(platform registry.Platform) (Plan, bool) {
	for _, plan := range r.Plans {
		if plan.Platform == platform {
			return plan, true
		}
	}
	return Plan{}, false
}

// Resolver evaluates a registry against changed files.
type Resolver struct {
	def       registry.Definition
	platforms []registry.Platform
	logger    *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithPlatforms limits resolution to the given platforms, in order.
func WithPlatforms(platforms ...registry.Platform) Option {
	return func(r *Resolver) {
		r.platforms = append([]registry.Platform(nil), platforms...)
	}
}

// WithLogger attaches a logger for per-stage debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New normalizes def and returns a resolver for it.
func New(def registry.Definition, opts ...Option) (*Resolver, error) {
	normalized, err := def.Normalized()
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	r := &Resolver{
		def:       normalized,
		platforms: registry.Platforms(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Definition returns a copy of the registry in use.
func (r *Resolver) Definition() registry.Definition {
	return r.def.Clone()
}

// Resolve computes the plans for a list of modified files.
func (r *Resolver) Resolve(files []string) Result {
	return r.ResolveDirectories(changes.Directories(files))
}

// ResolveDirectories computes the plans for already extracted top-level
// directories.
func (r *Resolver) ResolveDirectories(dirs []string) Result {
	result := Result{
		Directories: append([]string(nil), dirs...),
		Modified:    changes.KeepModified(dirs, r.def.Projects),
		Ignored:     changes.Unregistered(dirs, r.def.Projects),
	}
	if len(result.Ignored) > 0 {
		r.logger.Debug("ignoring unregistered directories", zap.Strings("directories", result.Ignored))
	}
	for _, tr := range r.def.Triggers {
		if tr.Matches(dirs) {
			result.Triggers = append(result.Triggers, tr)
		}
	}
	for _, platform := range r.platforms {
		result.Plans = append(result.Plans, r.Plan(platform, result.Modified))
	}
	return result
}

// Plan resolves a single platform for already registered modified projects.
func (r *Resolver) Plan(platform registry.Platform, modified []string) Plan {
	plan := Plan{Platform: platform, Reasons: map[string]Reason{}}
	excluded := map[string]struct{}{}
	filter := func(names []string) []string {
		kept := Exclude(r.def, platform, names)
		if len(kept) == len(names) {
			return kept
		}
		for _, name := range names {
			ex, ok := r.def.Excluded(platform, name)
			if !ok {
				continue
			}
			if _, seen := excluded[name]; !seen {
				excluded[name] = struct{}{}
				plan.Excluded = append(plan.Excluded, ex)
			}
		}
		return kept
	}

	for _, project := range modified {
		plan.note(project, Reason{Kind: ReasonModified})
	}
	for _, project := range modified {
		for _, implied := range r.def.Tests.Implied(project, platform) {
			plan.note(implied, Reason{Kind: ReasonTested, Via: project})
		}
	}
	plan.Tested = SortUnique(filter(ExpandTests(r.def, platform, modified)))

	for _, project := range plan.Tested {
		for _, dep := range r.def.Builds.Implied(project, platform) {
			plan.note(dep, Reason{Kind: ReasonBuilt, Via: project})
		}
		for _, rt := range r.def.RuntimeTests.Implied(project, platform) {
			plan.note(rt, Reason{Kind: ReasonRuntime, Via: project})
		}
	}
	plan.Projects = SortUnique(filter(ExpandBuilds(r.def, platform, plan.Tested)))
	plan.CheckTargets = SortUnique(CheckTargets(r.def.CheckTargets, plan.Tested))
	plan.Runtimes = SortUnique(filter(Runtimes(r.def, platform, plan.Tested)))
	plan.RuntimeCheckTargets = SortUnique(CheckTargets(r.def.CheckTargets, plan.Runtimes))

	for name := range excluded {
		delete(plan.Reasons, name)
	}
	r.logger.Debug("resolved platform plan",
		zap.String("platform", string(platform)),
		zap.Strings("tested", plan.Tested),
		zap.Strings("projects", plan.Projects),
		zap.Strings("check_targets", plan.CheckTargets),
		zap.Strings("runtimes", plan.Runtimes),
		zap.Int("excluded", len(plan.Excluded)),
	)
	return plan
}

func (p *Plan) note(name string, reason Reason) {
	if _, ok := p.Reasons[name]; ok {
		return
	}
	p.Reasons[name] = reason
}
