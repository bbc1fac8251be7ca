package textindex

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by every operation on a closed index.
var ErrClosed = errors.New("textindex: index closed")

// Index operation names used in IndexError.
const (
	OpMigrate = "migrate"
	OpInsert  = "insert"
	OpCommit  = "commit"
	OpClear   = "clear"
	OpReplace = "replace"
	OpCount   = "count"
	OpSearch  = "search"
)

// ParseError reports query text that is not well formed.
type ParseError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse query %q at offset %d: %s", e.Query, e.Pos, e.Msg)
}

// LookupError reports a hit whose stored field is missing. This means the
// index was written inconsistently and must not be papered over.
type LookupError struct {
	DocID string
	Field string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("stored field %q missing on document %q", e.Field, e.DocID)
}

// IndexError wraps a storage failure with the operation that hit it.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string { return "textindex " + e.Op + ": " + e.Err.Error() }
func (e *IndexError) Unwrap() error { return e.Err }

func indexErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}
