package sidecar

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// ParseError reports a sidecar that is not well-formed or does not have a
// Project root. No partial document is returned alongside it.
type ParseError struct {
	Path string
	Line int // 1-based, 0 when unknown
	Err  error
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("parse sidecar: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNoProject = errors.New("root element is not <Project>")

func newParseError(err error) *ParseError {
	pe := &ParseError{Err: err}
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		pe.Line = syn.Line
	}
	return pe
}
