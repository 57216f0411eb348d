package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunMode identifies the semantic kind of transformation a run performs.
// It is recorded in checkpoints for diagnostics; the engine itself never
// branches on it.
type RunMode string

const (
	// ModeMap applies a function over one sequence.
	ModeMap RunMode = "map"
	// ModePair applies a function over two sequences pairwise.
	ModePair RunMode = "pair"
	// ModeIndexed applies a function with the absolute 1-based item index.
	ModeIndexed RunMode = "indexed"
	// ModeNamed applies a function over N named sequences.
	ModeNamed RunMode = "named"
	// ModeForEach applies a function for its side effects only; no
	// output is collected.
	ModeForEach RunMode = "foreach"
)

// Valid reports whether the mode is one of the known run modes.
func (m RunMode) Valid() bool {
	switch m {
	case ModeMap, ModePair, ModeIndexed, ModeNamed, ModeForEach:
		return true
	}
	return false
}

// RunInfo is the metadata of a logical run. It is embedded in every
// checkpoint and is the unit the session registry lists.
type RunInfo struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`
	// Mode is the declared transformation kind.
	Mode RunMode `json:"mode"`
	// TotalItems is the length of the input collection.
	TotalItems int `json:"total_items"`
	// Completed is the number of items finished so far. The resume
	// point is always Completed+1.
	Completed int `json:"completed"`
	// CreatedAt is set when the run is first initialized.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is refreshed on every checkpoint write.
	UpdatedAt time.Time `json:"updated_at"`
	// Error holds the last terminal error message, if any.
	Error string `json:"error,omitempty"`
	// FailedBatch is the 1-based start index of the batch that
	// exhausted its retries. Zero means no recorded failure.
	FailedBatch int `json:"failed_batch,omitempty"`
}

// Finished reports whether the run has processed every input item.
func (r *RunInfo) Finished() bool {
	return r.TotalItems > 0 && r.Completed >= r.TotalItems
}

// Progress is a point-in-time view of a running batch, delivered to
// progress observers.
type Progress struct {
	RunID      string  `json:"run_id"`
	Mode       RunMode `json:"mode"`
	BatchStart int     `json:"batch_start"`
	BatchEnd   int     `json:"batch_end"`
	TotalItems int     `json:"total_items"`
	// Percent is items completed before this batch over total, 0..100.
	Percent float64 `json:"percent"`
}

// NewRunID generates a run identifier from the mode and the current
// time, with a short random suffix to disambiguate runs started within
// the same second.
func NewRunID(mode RunMode) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s-%s-%s", mode, time.Now().Format("20060102-150405"), suffix)
}
