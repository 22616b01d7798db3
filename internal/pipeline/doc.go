// Package pipeline renders resolved plans as a Buildkite pipeline document.
//
// Command lines are emitted as single-quoted YAML scalars: the agent hands
// each one to a shell, and the project lists inside them are double-quoted
// so every list arrives as a single argument.
package pipeline
