// Package diag defines the shared diagnostic shape used across the
// compilation pipeline: a severity, a source position, a human message,
// and an optional note/suggested fix, rendered with a caret under the
// offending column. The lexer and parser keep their own error types;
// the analyzer and emitter report through the types here.
package diag

import (
	"fmt"
	"strings"
)

// Severity distinguishes a fatal diagnostic from one that merely warns.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic carries everything needed to render a single compiler
// message: where it happened, what went wrong, and how it might be fixed.
type Diagnostic struct {
	Severity     Severity
	Filename     string
	Line         int32
	Column       int
	Message      string
	Note         string
	SuggestedFix string
}

// Colorizer lets a diagnostic's rendered text be styled without the
// analyzer/emitter depending on any particular terminal library. The
// default PlainColorizer performs no styling.
type Colorizer interface {
	Error(s string) string
	Warning(s string) string
	Note(s string) string
}

// PlainColorizer renders diagnostics with no ANSI styling.
type PlainColorizer struct{}

func (PlainColorizer) Error(s string) string   { return s }
func (PlainColorizer) Warning(s string) string { return s }
func (PlainColorizer) Note(s string) string    { return s }

// Render formats the diagnostic as a multi-line message: the headline,
// the offending source line (if available and the column is known), a
// caret under that column, and any note/suggested fix.
func (d Diagnostic) Render(sourceLines []string, c Colorizer) string {
	if c == nil {
		c = PlainColorizer{}
	}
	var sb strings.Builder

	headline := fmt.Sprintf("%s:%d: %s: %s", d.Filename, d.Line, d.Severity, d.Message)
	if d.Severity == SeverityWarning {
		headline = c.Warning(headline)
	} else {
		headline = c.Error(headline)
	}
	sb.WriteString(headline)
	sb.WriteByte('\n')

	if d.Line >= 1 && int(d.Line) <= len(sourceLines) && d.Column >= 0 {
		line := sourceLines[d.Line-1]
		sb.WriteString(line)
		sb.WriteByte('\n')
		if d.Column <= len(line) {
			sb.WriteString(strings.Repeat(" ", d.Column))
		}
		sb.WriteString("^\n")
	}

	if d.Note != "" {
		sb.WriteString(c.Note("note: " + d.Note))
		sb.WriteByte('\n')
	}
	if d.SuggestedFix != "" {
		sb.WriteString(c.Note("suggested fix: " + d.SuggestedFix))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// SemanticError is raised by the analyzer for any fatal semantic failure:
// unknown variable, unknown type, type mismatch, unresolved overload,
// break/continue outside a loop.
type SemanticError struct {
	Diagnostic
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Message)
}

// EmitError is the emitter's "should never happen" class: visiting a node
// kind the emitter has no lowering rule for, or reading an invariant the
// analyzer was supposed to have established. The counterpart of a
// DeveloperError.
type EmitError struct {
	Diagnostic
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("%s:%d: internal emitter error: %s", e.Filename, e.Line, e.Message)
}

// NewWarning builds a warning-severity Diagnostic for the common case of
// a single-line message with no note or suggested fix.
func NewWarning(filename string, line int32, message string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Filename: filename, Line: line, Column: -1, Message: message}
}
