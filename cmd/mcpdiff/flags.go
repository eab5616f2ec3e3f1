// ABOUTME: CLI flag parsing using stdlib flag package
// ABOUTME: Server command lines, labels, plan file, timeout, single and check modes

package main

import (
	"flag"
	"time"
)

type cliArgs struct {
	aCmd    string
	bCmd    string
	aName   string
	bName   string
	only    string
	repo    string
	plan    string
	timeout time.Duration
	verbose bool
	check   bool
	version bool
}

func parseFlags() cliArgs {
	var args cliArgs

	flag.StringVar(&args.aCmd, "a-cmd", "uv run python -m src.server", "Command line for implementation A (split on whitespace)")
	flag.StringVar(&args.bCmd, "b-cmd", "node typescript/dist/index.js", "Command line for implementation B (split on whitespace)")
	flag.StringVar(&args.aName, "a-name", "Python", "Label for implementation A")
	flag.StringVar(&args.bName, "b-name", "TypeScript", "Label for implementation B")
	flag.StringVar(&args.only, "only", "", "Run a single implementation: a or b")
	flag.StringVar(&args.repo, "repo", "", "Repository slug for repo-scoped tests (skips discovery)")
	flag.StringVar(&args.plan, "plan", "", "YAML plan file replacing the built-in call plan")
	flag.DurationVar(&args.timeout, "timeout", 30*time.Second, "Per-response read timeout")
	flag.BoolVar(&args.verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&args.check, "check", false, "Startup smoke test: initialize and list tools on one server (command follows flags)")
	flag.BoolVar(&args.version, "version", false, "Show version and exit")

	flag.Parse()
	return args
}

// remaining returns the non-flag command-line arguments.
func (a cliArgs) remaining() []string {
	return flag.Args()
}
