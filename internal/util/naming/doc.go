// Package naming provides consistent naming functions for migration resources.
//
// Resource names follow the pattern {release}-migration-{runID}-{kind}. The run
// id is derived from the version pair, so a second launch for the same pair
// resolves to the same names and collides with the first instead of creating
// an independent chain.
package naming
