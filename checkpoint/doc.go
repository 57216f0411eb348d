// Package checkpoint provides durable storage of run progress.
//
// A checkpoint is a snapshot of a run: its metadata plus the ordered
// prefix of per-item results completed so far. Snapshots are persisted
// after every batch so that an interrupted run resumes from the last
// completed item instead of restarting from zero.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - File: one JSON file per run id, for single-node production
//   - Redis: for deployments that share progress across hosts
//
// All backends write atomically: a crash between batches loses at most
// one batch of work and never corrupts the previous checkpoint.
package checkpoint
