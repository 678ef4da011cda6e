package sync

import (
	"time"

	"github.com/arwahdevops/mongosync/internal/config"
	"github.com/arwahdevops/mongosync/internal/metrics"
)

// OpKind names a mutating database operation.
type OpKind string

const (
	OpCreateCollection OpKind = "create_collection"
	OpDropCollection   OpKind = "drop_collection"
	OpCreateIndex      OpKind = "create_index"
	OpDropIndex        OpKind = "drop_index"
)

// Operation is one create/drop decision and what became of it.
type Operation struct {
	Kind       OpKind
	Collection string
	Index      string // empty for collection operations
	Outcome    string // metrics.OutcomeSuccess, OutcomeFailure or OutcomePlanned
	Err        error
}

// Target renders "collection" or "collection.index" for logs and errors.
func (o Operation) Target() string {
	if o.Index == "" {
		return o.Collection
	}
	return o.Collection + "." + o.Index
}

// Result records a single reconciliation pass.
type Result struct {
	Database        string
	Mode            config.Mode
	DatabaseExisted bool
	// Operations in the order they were issued.
	Operations           []Operation
	UnchangedCollections int
	UnchangedIndexes     int
	Duration             time.Duration
	Cancelled            bool
	// Err combines every recoverable failure of the pass (go.uber.org/multierr).
	Err error
}

// Count returns how many operations of kind ended with outcome.
// An empty outcome matches any outcome.
func (r *Result) Count(kind OpKind, outcome string) int {
	n := 0
	for _, op := range r.Operations {
		if op.Kind == kind && (outcome == "" || op.Outcome == outcome) {
			n++
		}
	}
	return n
}

// Failed returns the operations that returned an error.
func (r *Result) Failed() []Operation {
	var failed []Operation
	for _, op := range r.Operations {
		if op.Outcome == metrics.OutcomeFailure {
			failed = append(failed, op)
		}
	}
	return failed
}

// Converged reports whether the pass found nothing to change.
func (r *Result) Converged() bool {
	return len(r.Operations) == 0 && r.Err == nil && !r.Cancelled
}
