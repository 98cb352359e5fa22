package parser

import "fmt"

// SyntaxError is raised for any grammatically invalid token sequence.
// Error() renders "Syntax error at <token> (<type>) (:<line>)", optionally
// followed by a more specific message.
type SyntaxError struct {
	Line    int32
	Token   string
	Type    string
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Syntax error at %s (%s) (:%d): %s", e.Token, e.Type, e.Line, e.Message)
	}
	return fmt.Sprintf("Syntax error at %s (%s) (:%d)", e.Token, e.Type, e.Line)
}
