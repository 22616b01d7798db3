package pipeline

import (
	"fmt"
	"strings"

	"github.com/kingrea/premerge/internal/registry"
	"github.com/kingrea/premerge/internal/resolver"
)

// Exit statuses the agent reports when the step did not really fail.
const (
	ExitStatusAgentLost      = -1
	ExitStatusForcedShutdown = 255
	AutomaticRetryLimit      = 2
)

// DefaultArtifactPaths are uploaded from every platform step.
var DefaultArtifactPaths = []string{
	"artifacts/**/*",
	"*_result.json",
	"build/test-results.*.xml",
}

// PlatformSpec describes how a platform plan becomes a command step.
type PlatformSpec struct {
	Platform       registry.Platform
	Label          string
	Agents         map[string]string
	TimeoutMinutes int
	Env            map[string]string
	// Setup commands run before Script.
	Setup []string
	// Script receives the project and check target lists as arguments.
	Script string
	// WithRuntimes appends the runtime and runtime check target lists.
	WithRuntimes bool
}

// DefaultPlatforms returns the Linux and Windows step templates.
func DefaultPlatforms() []PlatformSpec {
	return []PlatformSpec{
		{
			Platform:       registry.PlatformLinux,
			Label:          ":linux: Linux x64",
			Agents:         map[string]string{"queue": "linux"},
			TimeoutMinutes: 120,
			Env:            map[string]string{"CC": "clang", "CXX": "clang++"},
			Script:         "./.ci/monolithic-linux.sh",
			WithRuntimes:   true,
		},
		{
			Platform:       registry.PlatformWindows,
			Label:          ":windows: Windows x64",
			Agents:         map[string]string{"queue": "windows"},
			TimeoutMinutes: 150,
			Env: map[string]string{
				"MAX_PARALLEL_COMPILE_JOBS": "16",
				"MAX_PARALLEL_LINK_JOBS":    "4",
			},
			Setup:  []string{`C:\BuildTools\Common7\Tools\VsDevCmd.bat -arch=amd64 -host_arch=amd64`},
			Script: "bash .ci/monolithic-windows.sh",
		},
	}
}

// Command renders the script invocation for plan.
func (s PlatformSpec) Command(plan resolver.Plan) string {
	args := []string{
		strings.Join(plan.Projects, ";"),
		strings.Join(plan.CheckTargets, " "),
	}
	if s.WithRuntimes {
		args = append(args,
			strings.Join(plan.Runtimes, ";"),
			strings.Join(plan.RuntimeCheckTargets, " "),
		)
	}
	var b strings.Builder
	b.WriteString(s.Script)
	for _, arg := range args {
		fmt.Fprintf(&b, " \"%s\"", arg)
	}
	return b.String()
}

// Step renders the command step for plan.
func (s PlatformSpec) Step(plan resolver.Plan) Step {
	step := Step{
		Label:            Quoted(s.Label),
		ArtifactPaths:    quoteAll(DefaultArtifactPaths),
		Agents:           cloneMap(s.Agents),
		Retry:            DefaultRetry(),
		TimeoutInMinutes: s.TimeoutMinutes,
	}
	if len(s.Env) > 0 {
		step.Env = make(map[string]Quoted, len(s.Env))
		for key, value := range s.Env {
			step.Env[key] = Quoted(value)
		}
	}
	step.Commands = append(quoteAll(s.Setup), Quoted(s.Command(plan)))
	return step
}

// DefaultRetry retries lost agents and forced shutdowns.
func DefaultRetry() *Retry {
	return &Retry{Automatic: []AutomaticRetry{
		{ExitStatus: ExitStatusAgentLost, Limit: AutomaticRetryLimit},
		{ExitStatus: ExitStatusForcedShutdown, Limit: AutomaticRetryLimit},
	}}
}

// BuildInfo identifies the change being tested.
type BuildInfo struct {
	Commit  string
	Branch  string
	Message string
}

// BuildMessage is the message passed to triggered pipelines.
func BuildMessage(reviewID, branch string) string {
	if reviewID != "" {
		return "https://llvm.org/" + reviewID
	}
	return "Push to branch " + branch
}

// Build assembles the document: trigger steps first, then one command step
// per platform with a non-empty plan.
func Build(result resolver.Result, platforms []PlatformSpec, info BuildInfo) Document {
	doc := Document{Steps: []Step{}}
	for _, tr := range result.Triggers {
		doc.Steps = append(doc.Steps, Step{
			Trigger: Quoted(tr.Pipeline),
			Build: &TriggerBuild{
				Message: Quoted(info.Message),
				Commit:  Quoted(info.Commit),
				Branch:  Quoted(info.Branch),
			},
		})
	}
	for _, spec := range platforms {
		plan, ok := result.Plan(spec.Platform)
		if !ok || plan.Empty() {
			continue
		}
		doc.Steps = append(doc.Steps, spec.Step(plan))
	}
	return doc
}

func quoteAll(values []string) []Quoted {
	if len(values) == 0 {
		return nil
	}
	out := make([]Quoted, len(values))
	for i, v := range values {
		out[i] = Quoted(v)
	}
	return out
}

func cloneMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
