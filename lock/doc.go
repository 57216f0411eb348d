// Package lock provides cross-process mutual exclusion per run
// identifier.
//
// The file backend relies on atomic create-if-absent (O_CREATE|O_EXCL)
// and needs no advisory OS lock or external coordination service:
// contention is rare (the same run id invoked twice concurrently) and a
// timeout bounds worst-case staleness from crashed holders. A lock
// artifact older than the timeout is presumed abandoned and may be
// reclaimed by any waiter.
//
// The Redis backend implements the same contract as a lease: SET NX
// with a TTL equal to the timeout, so stale locks expire on their own.
package lock
