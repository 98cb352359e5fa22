package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"mew/emitter"
	"mew/target"
)

// buildCmd implements the `mew <file>` contract: lex, parse, analyze, emit,
// and write the resulting C translation unit to disk.
type buildCmd struct {
	target string
	out    string
	fold   bool
}

func (*buildCmd) Name() string     { return "build" }
func (*buildCmd) Synopsis() string { return "Compile a mew source file to C" }
func (*buildCmd) Usage() string {
	return `build <file>:
  Lex, parse, analyze and emit C for a mew source file.
`
}

func (c *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.target, "target", "c", "emission target (resolved via targets.json)")
	f.StringVar(&c.out, "o", "out.c", "output file path")
	f.BoolVar(&c.fold, "fold", false, "fold constant integer expressions at parse time")
}

func (c *buildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	manifest, err := target.Load("targets.json", c.target)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	out, err := emitter.Emit(prog, filename, manifest)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(c.out, []byte(out), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", c.out, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
