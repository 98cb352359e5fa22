package main

import (
	"fmt"
	"os"

	"mew/analyzer"
	"mew/ast"
	"mew/diag"
	"mew/lexer"
	"mew/parser"
	"mew/token"
)

// lexFile reads filename and scans it into a token stream. On failure it
// returns the read error or the lex error wrapped as "lexing error: ...";
// printing is left to the caller.
func lexFile(filename string) ([]token.Token, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	lex := lexer.New(string(data))
	tokens, err := lex.Scan()
	if err != nil {
		return nil, fmt.Errorf("lexing error: %w", err)
	}
	return tokens, nil
}

// parseTokens parses tokens into a Program, returning the parser's first
// syntax error wrapped as "parsing error: ..." on failure. foldConstants
// enables parse-time folding of integer literal binary operations.
func parseTokens(tokens []token.Token, foldConstants bool) (*ast.Program, error) {
	p := parser.New(tokens, foldConstants)
	prog, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("parsing error: %w", err)
	}
	return prog, nil
}

// analyzeProgram runs semantic analysis over prog, printing accumulated
// warnings to stderr and returning the first fatal error, if any.
func analyzeProgram(prog *ast.Program, filename string) error {
	warnings, err := analyzer.Analyze(prog, filename)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w.Render(nil, diag.PlainColorizer{}))
	}
	if err != nil {
		return fmt.Errorf("semantic error: %w", err)
	}
	return nil
}
