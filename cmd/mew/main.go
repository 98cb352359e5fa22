// Command mew is the source-to-C transpiler's entry point: a
// subcommands-dispatched CLI wired to the lexer -> parser -> analyzer ->
// emitter pipeline.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&buildCmd{target: "c", out: "out.c"}, "")
	subcommands.Register(&tokensCmd{}, "")
	subcommands.Register(&astCmd{}, "")
	subcommands.Register(&replCmd{}, "")

	// `mew program.mw` (no subcommand name) is still a valid build
	// invocation, matching the bare `mew <file>` contract. Any first
	// argument that is not a subcommand name or a flag is treated as a
	// file, so a nonexistent file still reaches buildCmd's read error
	// instead of a usage error.
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		switch os.Args[1] {
		case "build", "tokens", "ast", "repl", "help", "flags", "commands":
		default:
			args := append([]string{"build"}, os.Args[1:]...)
			os.Args = append(os.Args[:1], args...)
		}
	}

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
