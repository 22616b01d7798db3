package pipeline

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Quoted is a string always emitted as a single-quoted scalar.
type Quoted string

// MarshalYAML implements yaml.Marshaler.
func (q Quoted) MarshalYAML() (interface{}, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.SingleQuotedStyle,
		Value: string(q),
	}, nil
}

// Document is the top-level pipeline upload.
type Document struct {
	Steps []Step `yaml:"steps"`
}

// Step is either a command step (Label/Commands) or a trigger step
// (Trigger/Build).
type Step struct {
	Trigger          Quoted            `yaml:"trigger,omitempty"`
	Build            *TriggerBuild     `yaml:"build,omitempty"`
	Label            Quoted            `yaml:"label,omitempty"`
	ArtifactPaths    []Quoted          `yaml:"artifact_paths,omitempty"`
	Agents           map[string]string `yaml:"agents,omitempty"`
	Retry            *Retry            `yaml:"retry,omitempty"`
	TimeoutInMinutes int               `yaml:"timeout_in_minutes,omitempty"`
	Env              map[string]Quoted `yaml:"env,omitempty"`
	Commands         []Quoted          `yaml:"commands,omitempty"`
}

// IsTrigger reports whether the step starts another pipeline.
func (s Step) IsTrigger() bool {
	return s.Trigger != ""
}

// TriggerBuild carries the build attributes passed to a triggered pipeline.
type TriggerBuild struct {
	Message Quoted `yaml:"message"`
	Commit  Quoted `yaml:"commit"`
	Branch  Quoted `yaml:"branch"`
}

// Retry is the step retry policy.
type Retry struct {
	Automatic []AutomaticRetry `yaml:"automatic"`
}

// AutomaticRetry retries a step up to Limit times when it exits with
// ExitStatus.
type AutomaticRetry struct {
	ExitStatus int `yaml:"exit_status"`
	Limit      int `yaml:"limit"`
}

// ToYAML encodes the document.
func (d Document) ToYAML() ([]byte, error) {
	if d.Steps == nil {
		d.Steps = []Step{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("pipeline: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("pipeline: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Write encodes the document fully before writing any of it to w.
func (d Document) Write(w io.Writer) error {
	data, err := d.ToYAML()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("pipeline: write: %w", err)
	}
	return nil
}
