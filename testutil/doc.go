// Package testutil provides shared helpers for tests: bounded test
// contexts, failure-injecting item functions and a recording progress
// observer. Tests should prefer these over re-implementing similar
// scaffolding per package.
package testutil
