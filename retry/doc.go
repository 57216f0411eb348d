// Package retry provides bounded retry with a fixed interval between
// attempts, plus optional exponential growth and jitter for callers
// that want backoff.
package retry
