// Package session gives operators a read-mostly view over persisted
// runs: list them, inspect one, prune the ones nobody will resume.
package session
