// Package diag defines structured diagnostics and their aggregation.
//
// Every stage of the engine reports problems the same way: a Diagnostic
// with a severity, a stable code, a span id into the span registry, and
// the query it originated from. The aggregator collects them across a
// build; rendering them is the excluded reporting layer's job.
package diag

import (
	"fmt"
	"sync"

	"github.com/roach88/ccbind/internal/span"
)

// Severity orders how bad a diagnostic is. A build with only warnings
// and notes succeeds; any error-severity diagnostic fails it overall.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Diagnostic codes. Stable strings: scenario expectations and hosts match
// on these, never on message text.
const (
	CodeParse                = "parse_error"
	CodeSourceUnavailable    = "source_unavailable"
	CodeNotFound             = "not_found"
	CodeUnsupportedSignature = "unsupported_signature"
	CodeUnsupportedConstruct = "unsupported_construct"
	CodePartialLayout        = "partial_layout"
	CodeLayoutMismatch       = "layout_mismatch"
	CodeStaleHandle          = "stale_handle"
	CodeCycle                = "cyclic_dependency"
	CodeInternal             = "internal_error"
)

// Diagnostic is one structured report from any stage.
type Diagnostic struct {
	Severity Severity    `json:"severity"`
	Code     string      `json:"code"`
	Message  string      `json:"message"`
	Span     span.SpanID `json:"span"`
	Origin   string      `json:"origin,omitempty"` // originating query, display form
}

// Errorf builds an error-severity diagnostic.
func Errorf(code string, sp span.SpanID, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Span:     sp,
	}
}

// Warningf builds a warning-severity diagnostic.
func Warningf(code string, sp span.SpanID, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Span:     sp,
	}
}

// Notef builds a note-severity diagnostic.
func Notef(code string, sp span.SpanID, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SeverityNote,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Span:     sp,
	}
}

// WithOrigin returns a copy tagged with the originating query.
func (d Diagnostic) WithOrigin(origin string) Diagnostic {
	d.Origin = origin
	return d
}

// CanonicalMap converts the diagnostic for canonical JSON serialization
// (golden snapshots).
func (d Diagnostic) CanonicalMap() map[string]any {
	m := map[string]any{
		"severity": string(d.Severity),
		"code":     d.Code,
		"message":  d.Message,
		"span":     int64(d.Span),
	}
	if d.Origin != "" {
		m["origin"] = d.Origin
	}
	return m
}

// Aggregator collects diagnostics from all stages of a build.
// Safe for concurrent use: parallel top-level queries report into one
// aggregator.
type Aggregator struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends diagnostics.
func (a *Aggregator) Add(diags ...Diagnostic) {
	if len(diags) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diags = append(a.diags, diags...)
}

// All returns a copy of every collected diagnostic, in arrival order.
func (a *Aggregator) All() []Diagnostic {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Diagnostic, len(a.diags))
	copy(out, a.diags)
	return out
}

// HasErrors reports whether any error-severity diagnostic was collected.
// This is the build's overall pass/fail signal.
func (a *Aggregator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns the number of collected diagnostics.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.diags)
}

// CountSeverity returns how many diagnostics carry the given severity.
func (a *Aggregator) CountSeverity(sev Severity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, d := range a.diags {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// Reset discards all collected diagnostics. Used between builds when the
// host reuses one session.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diags = nil
}
