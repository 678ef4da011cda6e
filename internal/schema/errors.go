package schema

import (
	"errors"
	"fmt"
)

// ParseError is returned when a desired-schema description cannot be read or
// does not have the expected shape. It is the one unrecoverable error of a run.
type ParseError struct {
	Source string // file path, or "<inline>"
	Path   string // location inside the document, e.g. "orders.indexes[1].key"
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	var loc string
	switch {
	case e.Source != "" && e.Path != "":
		loc = e.Source + ": " + e.Path
	case e.Source != "":
		loc = e.Source
	default:
		loc = e.Path
	}
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if loc == "" {
		return "invalid schema description: " + msg
	}
	return fmt.Sprintf("invalid schema description (%s): %s", loc, msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is, or wraps, a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func newParseError(path, format string, args ...interface{}) *ParseError {
	return &ParseError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// errNoCollections rejects a top level that is not an object. An explicit
// empty object is the only way to ask for every collection to be dropped.
func errNoCollections(got string) *ParseError {
	return newParseError("", "top level must be an object of collection names, got %s", got)
}
