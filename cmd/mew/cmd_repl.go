package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"mew/emitter"
	"mew/lexer"
	"mew/parser"
	"mew/target"
	"mew/token"
)

// replCmd is an interactive read-eval-print loop: each complete statement
// is lexed, parsed, analyzed and emitted to its C fragment, printed back
// to the user. Line editing and history are provided by readline; input
// is buffered until the braces balance so blocks can span lines.
type replCmd struct {
	fold bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive mew REPL" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive read-eval-print loop.
`
}

func (c *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.fold, "fold", false, "fold constant integer expressions at parse time")
}

// braceDepth reports the running `{`/`}` imbalance across tokens, used to
// decide whether a REPL line needs more input before it can be parsed.
func braceDepth(tokens []token.Token) int {
	depth := 0
	for _, t := range tokens {
		switch t.Type {
		case token.LCUR:
			depth++
		case token.RCUR:
			depth--
		}
	}
	return depth
}

func (c *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "mew> ",
		HistoryFile:     filepathJoinTemp("mew_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	manifest, err := target.Default("c")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var buf strings.Builder
	for {
		prompt := "mew> "
		if buf.Len() > 0 {
			prompt = "...> "
		}
		rl.SetPrompt(prompt)

		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			buf.Reset()
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		if strings.TrimSpace(line) == "exit" && buf.Len() == 0 {
			return subcommands.ExitSuccess
		}

		buf.WriteString(line)
		buf.WriteByte('\n')

		lex := lexer.New(buf.String())
		tokens, lexErr := lex.Scan()
		if lexErr != nil {
			fmt.Fprintln(os.Stderr, lexErr)
			buf.Reset()
			continue
		}
		if braceDepth(tokens) > 0 {
			continue
		}

		p := parser.New(tokens, c.fold)
		prog, parseErr := p.Parse()
		if parseErr != nil {
			fmt.Fprintln(os.Stderr, parseErr)
			buf.Reset()
			continue
		}

		if err := analyzeProgram(prog, "<repl>"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			buf.Reset()
			continue
		}

		out, emitErr := emitter.Emit(prog, "<repl>", manifest)
		if emitErr != nil {
			fmt.Fprintln(os.Stderr, emitErr)
			buf.Reset()
			continue
		}
		fmt.Print(out)
		buf.Reset()
	}
}

func filepathJoinTemp(name string) string {
	return os.TempDir() + string(os.PathSeparator) + name
}
