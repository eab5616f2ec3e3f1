// ABOUTME: Evaluation orchestrator: drives both sessions through the fixed plan
// ABOUTME: Sessions are always released, per-call failures never abort the remaining plan

package eval

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mauromedda/mcpdiff/internal/diff"
	"github.com/mauromedda/mcpdiff/internal/log"
	"github.com/mauromedda/mcpdiff/internal/mcp"
)

// Session is the slice of the MCP client the orchestrator drives.
// *mcp.Client satisfies it.
type Session interface {
	Name() string
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (mcp.ToolResult, error)
	Close() error
}

// discoveryTool lists repositories; its first entry names the sample repo.
const discoveryTool = "list_repositories"

// Orchestrator runs the fixed plan against two sessions sequentially: each
// call is issued to A, awaited, then issued to B. There is no concurrent
// invocation of the two servers.
type Orchestrator struct {
	// A is the primary session; B may be nil for single-implementation mode.
	A, B Session
	// Plan is the call plan; zero value means DefaultPlan.
	Plan Plan
	// Repo pre-sets the sample repository, skipping discovery.
	Repo string
	// Ignore overrides the volatile-field set. Nil means the default.
	Ignore map[string]bool
	// Printer receives progress output. Nil discards it.
	Printer *Printer
}

// Run executes the plan and returns the report. Both sessions are stopped
// before Run returns, success or not. A session-start or tool-listing
// failure is fatal and returned as an error; per-call failures are recorded
// in the report instead.
func (o *Orchestrator) Run(ctx context.Context) (report *Report, err error) {
	if len(o.Plan.Global) == 0 && len(o.Plan.RepoScoped) == 0 {
		o.Plan = DefaultPlan()
	}
	p := o.Printer
	if p == nil {
		p = NewPrinter(discard{})
	}

	report = &Report{RunID: uuid.NewString()}

	sessions := []Session{o.A}
	if o.B != nil {
		sessions = append(sessions, o.B)
	}
	defer func() {
		p.Sectionf("--- Stopping servers ---")
		for _, s := range sessions {
			if cerr := s.Close(); cerr != nil {
				log.Debug("%s: close: %v", s.Name(), cerr)
			}
			p.OKf("%s server stopped", s.Name())
		}
	}()

	p.Sectionf("Starting MCP servers...")
	for _, s := range sessions {
		if err := s.Connect(ctx); err != nil {
			return report, fmt.Errorf("starting %s server: %w", s.Name(), err)
		}
		p.OKf("%s server started", s.Name())
	}

	if outcome, err := o.compareToolSets(ctx, p); err != nil {
		return report, err
	} else if outcome != nil {
		report.Results = append(report.Results, *outcome)
	}

	repo, err := o.sampleRepo(ctx, p)
	if err != nil {
		return report, err
	}

	p.Sectionf("--- Testing Read-Only Tools ---")
	for _, call := range o.Plan.Global {
		report.Results = append(report.Results, o.runCall(ctx, p, call.Tool, call.Args))
	}

	if repo != "" {
		repoArg := o.Plan.RepoArg
		if repoArg == "" {
			repoArg = "repo_slug"
		}
		for _, call := range o.Plan.RepoScoped {
			args := make(map[string]any, len(call.Args)+1)
			args[repoArg] = repo
			for k, v := range call.Args {
				args[k] = v
			}
			report.Results = append(report.Results, o.runCall(ctx, p, call.Tool, args))
		}
	} else if len(o.Plan.RepoScoped) > 0 {
		p.Warnf("No repository available, skipping repo-specific tests")
	}

	return report, nil
}

// compareToolSets lists tools on both sessions and compares the name
// projection with set semantics. In single mode it only reports the count.
// A listing failure is fatal to the run.
func (o *Orchestrator) compareToolSets(ctx context.Context, p *Printer) (*Outcome, error) {
	p.Sectionf("--- Tool Listing ---")

	toolsA, err := o.A.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	p.Linef("%s: %d tools", o.A.Name(), len(toolsA))

	if o.B == nil {
		return nil, nil
	}

	toolsB, err := o.B.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	p.Linef("%s: %d tools", o.B.Name(), len(toolsB))

	outcome := Outcome{Tool: "tools/list", Success: true}
	if missing := missingNames(toolsA, toolsB); len(missing) > 0 {
		d := fmt.Sprintf("Tools missing in %s: %v", o.B.Name(), missing)
		outcome.Differences = append(outcome.Differences, d)
		p.Warnf("Missing in %s: %v", o.B.Name(), missing)
	}
	if missing := missingNames(toolsB, toolsA); len(missing) > 0 {
		d := fmt.Sprintf("Tools missing in %s: %v", o.A.Name(), missing)
		outcome.Differences = append(outcome.Differences, d)
		p.Warnf("Missing in %s: %v", o.A.Name(), missing)
	}
	if len(outcome.Differences) > 0 {
		outcome.Success = false
	} else {
		p.OKf("Tool sets match!")
	}
	return &outcome, nil
}

// sampleRepo resolves the repository the repo-scoped plan runs against:
// either supplied externally or discovered via a listing call on A.
// Discovery failure skips the scoped plan; it is not fatal.
func (o *Orchestrator) sampleRepo(ctx context.Context, p *Printer) (string, error) {
	if o.Repo != "" || len(o.Plan.RepoScoped) == 0 {
		return o.Repo, nil
	}

	p.Sectionf("--- Finding test repository ---")
	res, err := o.A.CallTool(ctx, discoveryTool, map[string]any{"limit": 1})
	if err != nil {
		p.Warnf("Repository discovery failed: %v", err)
		return "", nil
	}
	if res.Kind != mcp.ResultStructured {
		p.Warnf("No repositories found, skipping repo-specific tests")
		return "", nil
	}

	repos, _ := res.Structured["repositories"].([]any)
	if len(repos) == 0 {
		p.Warnf("No repositories found, skipping repo-specific tests")
		return "", nil
	}
	first, _ := repos[0].(map[string]any)
	name, _ := first["name"].(string)
	if name == "" {
		p.Warnf("No repositories found, skipping repo-specific tests")
		return "", nil
	}
	p.Linef("  Using repository: %s", name)
	return name, nil
}

// runCall executes one planned call against both sessions and compares the
// results. Local failures are recorded, never propagated.
func (o *Orchestrator) runCall(ctx context.Context, p *Printer, tool string, args map[string]any) Outcome {
	out := Outcome{Tool: tool, Success: true}
	p.Sectionf("Testing: %s", tool)

	resA, err := o.A.CallTool(ctx, tool, args)
	if err != nil {
		out.Success = false
		out.Err = err.Error()
		p.Failf("Error: %v", err)
		return out
	}
	o.sideStatus(p, o.A.Name(), resA)

	if o.B == nil {
		return out
	}

	resB, err := o.B.CallTool(ctx, tool, args)
	if err != nil {
		out.Success = false
		out.Err = err.Error()
		p.Failf("Error: %v", err)
		return out
	}
	o.sideStatus(p, o.B.Name(), resB)

	cmp := diff.Comparator{LabelA: o.A.Name(), LabelB: o.B.Name(), Ignore: o.Ignore}
	out.Differences = cmp.Compare(resA.Fields(), resB.Fields())
	if len(out.Differences) > 0 {
		out.Success = false
		for _, d := range out.Differences {
			p.Failf("%s", d)
		}
	} else {
		p.OKf("Results match")
	}
	return out
}

// sideStatus prints one implementation's per-call status line.
func (o *Orchestrator) sideStatus(p *Printer, name string, res mcp.ToolResult) {
	if res.IsError() {
		p.Warnf("%s: %v", name, res.Errored["message"])
		return
	}
	p.OKf("%s", name)
}

// missingNames returns the names in a absent from b, sorted.
func missingNames(a, b []mcp.Tool) []string {
	have := make(map[string]bool, len(b))
	for _, t := range b {
		have[t.Name] = true
	}
	var out []string
	for _, t := range a {
		if !have[t.Name] {
			out = append(out, t.Name)
		}
	}
	sort.Strings(out)
	return out
}

// discard is an io.Writer sink for the nil-printer case.
type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
