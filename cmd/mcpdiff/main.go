// ABOUTME: CLI entry point for mcpdiff, the MCP differential evaluation harness
// ABOUTME: Parses flags, validates credentials, starts server sessions, dispatches to the orchestrator

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mauromedda/mcpdiff/internal/config"
	"github.com/mauromedda/mcpdiff/internal/eval"
	"github.com/mauromedda/mcpdiff/internal/log"
	"github.com/mauromedda/mcpdiff/internal/mcp"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes: 0 full match, 1 evaluation failure or divergence,
// 2 precondition failure (missing credentials, bad usage).
const (
	exitOK      = 0
	exitFailed  = 1
	exitPrecond = 2
)

func main() {
	args := parseFlags()

	if args.version {
		fmt.Printf("mcpdiff %s (%s, built %s)\n", version, commit, date)
		return
	}
	if args.verbose {
		log.SetLevel(log.LevelDebug)
	}

	ctx := context.Background()
	if args.check {
		os.Exit(runCheck(ctx, args))
	}
	os.Exit(run(ctx, args))
}

func run(ctx context.Context, args cliArgs) int {
	creds, err := config.LoadCredentials()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "\nSet them with:\n")
		fmt.Fprintf(os.Stderr, "  export %s=your-workspace\n", config.EnvWorkspace)
		fmt.Fprintf(os.Stderr, "  export %s=you@example.com\n", config.EnvEmail)
		fmt.Fprintf(os.Stderr, "  export %s=your-api-token\n", config.EnvToken)
		return exitPrecond
	}

	plan := eval.DefaultPlan()
	if args.plan != "" {
		plan, err = eval.LoadPlan(args.plan)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitPrecond
		}
	}

	printer := eval.NewPrinter(os.Stdout)
	printer.Sectionf(strings.Repeat("=", 60))
	printer.Sectionf("BITBUCKET MCP EVALUATION")
	printer.Linef("Workspace: %s", creds.Workspace)
	printer.Sectionf(strings.Repeat("=", 60))

	var sessions []*mcp.Client
	startSession := func(name, cmdline string) (*mcp.Client, error) {
		parts := strings.Fields(cmdline)
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty command for %s", name)
		}
		transport, err := mcp.StartStdio(mcp.StdioConfig{
			Command:     parts,
			Env:         creds.Env(),
			ReadTimeout: args.timeout,
			Server:      name,
		})
		if err != nil {
			return nil, fmt.Errorf("starting %s: %w", name, err)
		}
		c := mcp.NewClient(name, transport)
		sessions = append(sessions, c)
		return c, nil
	}
	cleanup := func() {
		for _, s := range sessions {
			s.Close()
		}
	}

	o := &eval.Orchestrator{Plan: plan, Repo: args.repo, Printer: printer}
	switch strings.ToLower(args.only) {
	case "":
		a, err := startSession(args.aName, args.aCmd)
		if err == nil {
			o.A = a
			o.B, err = startSession(args.bName, args.bCmd)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			cleanup()
			return exitFailed
		}
	case "a":
		a, err := startSession(args.aName, args.aCmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailed
		}
		o.A = a
	case "b":
		b, err := startSession(args.bName, args.bCmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFailed
		}
		o.A = b
	default:
		fmt.Fprintf(os.Stderr, "error: -only must be \"a\" or \"b\", got %q\n", args.only)
		return exitPrecond
	}

	report, err := o.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFailed
	}

	printer.Summary(report)
	if report.OK() {
		return exitOK
	}
	return exitFailed
}

// runCheck performs a startup smoke test against a single server without
// requiring credentials. The server command follows the flags.
func runCheck(ctx context.Context, args cliArgs) int {
	cmdline := args.remaining()
	if len(cmdline) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mcpdiff -check [flags] <command> [args...]")
		return exitPrecond
	}

	transport, err := mcp.StartStdio(mcp.StdioConfig{
		Command:     cmdline,
		ReadTimeout: args.timeout,
		Server:      "server",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Failed to start server: %v\n", err)
		return exitFailed
	}
	c := mcp.NewClient("server", transport)
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "✗ Initialize failed: %v\n", err)
		return exitFailed
	}
	if rpcErr := c.InitializeError(); rpcErr != nil {
		// The server came up and produced a well-formed response. Missing
		// credentials commonly surface here, which is fine for a smoke test.
		fmt.Printf("✓ Server responded to initialize with an error: %v\n", rpcErr)
		return exitOK
	}
	info := c.ServerInfo()
	fmt.Printf("✓ Server initialized: %s %s\n", info.Name, info.Version)

	tools, err := c.ListTools(ctx)
	if err != nil {
		fmt.Printf("⚠ tools/list failed: %v\n", err)
		return exitOK
	}
	fmt.Printf("✓ Server exposes %d tools\n", len(tools))
	return exitOK
}
