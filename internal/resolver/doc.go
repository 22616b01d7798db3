// Package resolver computes, per CI platform, which projects a change must
// test and build and which check targets must run. Each stage is a pure
// function over the registry tables; Resolver chains them in a fixed order:
// test implication, build implication, platform filter, check targets.
package resolver
