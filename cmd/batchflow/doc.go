// Command batchflow inspects and maintains checkpointed runs.
//
// Usage:
//
//	batchflow sessions                     # list persisted runs
//	batchflow show <run-id>                # dump one run's snapshot
//	batchflow stats                        # aggregate run counts
//	batchflow prune --retention 168h       # delete terminal/stale runs
//	batchflow clear-lock <run-id>          # force-remove an abandoned lock
//	batchflow version                      # show version information
//
// All commands accept --config pointing at a YAML configuration file;
// BATCHFLOW_* environment variables override individual fields.
package main
