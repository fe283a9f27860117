package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ccbind/internal/diag"
	"github.com/roach88/ccbind/internal/span"
	"github.com/roach88/ccbind/internal/translate"
)

// ErrorCode classifies engine failures. Codes are part of the API: hosts
// switch on them to decide whether a failure is a caller mistake (NotFound,
// StaleHandle), a source problem (SourceUnavailable, ParseFailed), or a bug
// in the demand graph itself (CyclicDependency).
type ErrorCode string

const (
	// CodeCyclicDependency means a query transitively demanded itself.
	// The dependency graph must stay acyclic; this is always a defect in
	// the host's query wiring, never a property of the input headers.
	CodeCyclicDependency ErrorCode = "cyclic_dependency"

	// CodeSourceUnavailable means the loader could not produce file text.
	CodeSourceUnavailable ErrorCode = "source_unavailable"

	// CodeParseFailed means the frontend recovered no declarations at all.
	CodeParseFailed ErrorCode = "parse_failed"

	// CodeNotFound means name resolution matched no declaration.
	CodeNotFound ErrorCode = "not_found"

	// CodeTranslateFailed wraps a translation rejection for one handle.
	CodeTranslateFailed ErrorCode = "translate_failed"

	// CodeStaleHandle means a declaration handle outlived its tree
	// generation. The caller must re-resolve before translating.
	CodeStaleHandle ErrorCode = "stale_handle"

	// CodeInternal covers engine wiring defects such as a query kind
	// with no registered handler.
	CodeInternal ErrorCode = "internal"
)

// Error is the failure type returned by Runtime.Get and Session.Bind for
// anything beyond plain context cancellation. The wrapped cause, when
// present, is reachable through errors.As so callers can recover the
// typed parse, resolve, or translate error underneath.
type Error struct {
	Code  ErrorCode
	Query string // display form of the failing query
	Msg   string
	Span  span.SpanID
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Query != "" {
		fmt.Fprintf(&b, " [%s]", e.Query)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Diagnostic renders the error as a diagnostic for host consumption.
// Translation failures defer to the underlying translate error, which
// carries the precise code and source span.
func (e *Error) Diagnostic() diag.Diagnostic {
	var te *translate.Error
	if errors.As(e.Err, &te) {
		return te.Diagnostic()
	}
	code := diag.CodeInternal
	switch e.Code {
	case CodeCyclicDependency:
		code = diag.CodeCycle
	case CodeSourceUnavailable:
		code = diag.CodeSourceUnavailable
	case CodeParseFailed:
		code = diag.CodeParse
	case CodeNotFound:
		code = diag.CodeNotFound
	case CodeTranslateFailed:
		code = diag.CodeUnsupportedConstruct
	case CodeStaleHandle:
		code = diag.CodeStaleHandle
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return diag.Errorf(code, e.Span, "%s", msg)
}

func newError(code ErrorCode, query, msg string, cause error) *Error {
	return &Error{Code: code, Query: query, Msg: msg, Span: span.None, Err: cause}
}

func cycleError(chain []string) *Error {
	return &Error{
		Code: CodeCyclicDependency,
		Msg:  "query cycle: " + strings.Join(chain, " -> "),
		Span: span.None,
	}
}

func codeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCycle reports whether err is a cyclic-dependency failure.
func IsCycle(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeCyclicDependency
}

// IsNotFound reports whether err is a failed name resolution.
func IsNotFound(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeNotFound
}

// IsStaleHandle reports whether err means a handle's tree generation has
// been superseded by a reparse.
func IsStaleHandle(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeStaleHandle
}

// IsSourceUnavailable reports whether err is a loader failure.
func IsSourceUnavailable(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeSourceUnavailable
}

// IsParseFailed reports whether err is a fatal parse.
func IsParseFailed(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeParseFailed
}

// IsTranslateFailed reports whether err is a translation rejection.
func IsTranslateFailed(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeTranslateFailed
}
