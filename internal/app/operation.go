package app

import "time"

// Operation tracks one CLI run. Every log line carries its RunID, and only
// runs that changed stored data trigger the on-close snapshot.
type Operation struct {
	Name    string
	RunID   string
	Started time.Time
	Status  string // "success" or "error"

	mutating bool
}

// NewOperation creates an operation started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		Name:    name,
		RunID:   now.UTC().Format("20060102T150405Z"),
		Started: now,
		Status:  "success",
	}
}

// MarkMutating records that the run changed stored data.
func (op *Operation) MarkMutating() { op.mutating = true }

// Mutating reports whether MarkMutating was called.
func (op *Operation) Mutating() bool { return op.mutating }

// Fail marks the operation as failed.
func (op *Operation) Fail() { op.Status = "error" }
