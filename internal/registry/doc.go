// Package registry declares the closed set of monorepo projects and the rule
// tables that decide what a change tests and builds on each CI platform.
package registry
