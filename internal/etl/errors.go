package etl

import (
	"fmt"
)

// FetchError reports that a source could not be retrieved: network failure,
// a non-200 response, a timeout, or a misconfigured locator.
type FetchError struct {
	Source     string // pipeline / source name
	Locator    string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaMismatchError reports that a table's shape violates what its pipeline
// expects: wrong column count for a positional source, or a column that a
// required coercion rule refers to is missing.
type SchemaMismatchError struct {
	Source   string
	Expected int
	Got      int
	Column   string
	Reason   string
}

func (e *SchemaMismatchError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("schema mismatch in %s: column %q: %s", e.Source, e.Column, e.Reason)
	case e.Expected != e.Got:
		return fmt.Sprintf("schema mismatch in %s: expected %d columns, got %d", e.Source, e.Expected, e.Got)
	default:
		return fmt.Sprintf("schema mismatch in %s: %s", e.Source, e.Reason)
	}
}

// Write stages reported by SinkWriteError.
const (
	StageDelete = "delete"
	StageInsert = "insert"
)

// SinkWriteError reports a failed delete or insert. Deleted and Inserted carry
// what had already happened: after a failed insert the collection may be empty
// or partially populated. Nothing is rolled back.
type SinkWriteError struct {
	Collection string
	Stage      string
	Deleted    int64
	Inserted   int
	Err        error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write %s: %s failed (deleted=%d inserted=%d): %v",
		e.Collection, e.Stage, e.Deleted, e.Inserted, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
