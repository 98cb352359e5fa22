package diag

import (
	"strings"
	"testing"
)

func TestRenderWithCaret(t *testing.T) {
	d := Diagnostic{
		Severity: SeverityError,
		Filename: "test.mw",
		Line:     2,
		Column:   4,
		Message:  "unknown variable \"x\"",
		Note:     "declare it first",
	}
	lines := []string{"u32 a = 1", "b = x + 1"}
	out := d.Render(lines, nil)

	if !strings.Contains(out, "test.mw:2: error: unknown variable \"x\"") {
		t.Errorf("missing headline, got:\n%s", out)
	}
	if !strings.Contains(out, "b = x + 1\n    ^") {
		t.Errorf("caret not under column 4, got:\n%s", out)
	}
	if !strings.Contains(out, "note: declare it first") {
		t.Errorf("missing note, got:\n%s", out)
	}
}

func TestRenderWarningSeverity(t *testing.T) {
	d := NewWarning("test.mw", 1, "Redundant character `;`")
	out := d.Render(nil, nil)
	if !strings.Contains(out, "test.mw:1: warning: Redundant character `;`") {
		t.Errorf("unexpected render:\n%s", out)
	}
}

func TestRenderSuggestedFix(t *testing.T) {
	d := Diagnostic{
		Severity:     SeverityError,
		Filename:     "test.mw",
		Line:         1,
		Column:       -1,
		Message:      "type mismatch",
		SuggestedFix: "string a = \"hello\";",
	}
	out := d.Render(nil, nil)
	if !strings.Contains(out, "suggested fix: string a = \"hello\";") {
		t.Errorf("missing suggested fix, got:\n%s", out)
	}
}

func TestRenderSkipsSourceWhenUnavailable(t *testing.T) {
	d := Diagnostic{Severity: SeverityError, Filename: "f", Line: 99, Column: 0, Message: "m"}
	out := d.Render([]string{"only one line"}, nil)
	if strings.Contains(out, "^") {
		t.Errorf("caret rendered for an out-of-range line:\n%s", out)
	}
}

func TestSeverityStrings(t *testing.T) {
	if SeverityError.String() != "error" || SeverityWarning.String() != "warning" {
		t.Error("severity strings changed")
	}
}

func TestErrorTypes(t *testing.T) {
	se := &SemanticError{Diagnostic: Diagnostic{Filename: "a.mw", Line: 3, Message: "bad"}}
	if se.Error() != "a.mw:3: bad" {
		t.Errorf("SemanticError.Error() = %q", se.Error())
	}
	ee := &EmitError{Diagnostic: Diagnostic{Filename: "a.mw", Line: 4, Message: "unknown node"}}
	if !strings.Contains(ee.Error(), "internal emitter error") {
		t.Errorf("EmitError.Error() = %q", ee.Error())
	}
}
