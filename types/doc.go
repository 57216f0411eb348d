// Package types defines the shared data model of the batchflow engine:
// run modes, run metadata, progress snapshots, and the structured error
// type used across all packages.
//
// The package has no dependencies on other batchflow packages so that
// every component can import it without cycles.
package types
