package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"mew/parser"
)

// astCmd dumps the analyzed AST as JSON, using the same visitor-based
// printer idiom as parser/printer.go's astPrinter.
type astCmd struct {
	fold bool
}

func (*astCmd) Name() string     { return "ast" }
func (*astCmd) Synopsis() string { return "Dump the analyzed AST as JSON" }
func (*astCmd) Usage() string {
	return `ast <file>:
  Lex, parse and analyze a mew source file, then print its AST as JSON.
`
}

func (c *astCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.fold, "fold", false, "fold constant integer expressions at parse time")
}

func (c *astCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "file not provided\n")
		return subcommands.ExitFailure
	}
	filename := args[0]

	tokens, err := lexFile(filename)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	prog, err := parseTokens(tokens, c.fold)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := analyzeProgram(prog, filename); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	out, err := parser.PrintASTJSON(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(out)
	return subcommands.ExitSuccess
}
