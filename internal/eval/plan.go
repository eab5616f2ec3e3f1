// ABOUTME: Fixed test plans as data: repo-independent and repo-scoped call lists
// ABOUTME: Defaults mirror the read-only Bitbucket tool set; YAML files can replace them

package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mauromedda/mcpdiff/internal/config"
)

// PlannedCall is one tool invocation in the plan.
type PlannedCall struct {
	Tool string         `yaml:"tool"`
	Args map[string]any `yaml:"args"`
}

// Plan is the ordered set of calls issued to both servers. Only read-only
// tools belong here; the harness never exercises create, delete, merge, or
// trigger operations.
type Plan struct {
	// Global calls run unconditionally.
	Global []PlannedCall `yaml:"global"`
	// RepoScoped calls run only once a sample repository is known; each gets
	// the repository injected under RepoArg.
	RepoScoped []PlannedCall `yaml:"repo_scoped"`
	// RepoArg is the argument key carrying the repository slug. Defaults to
	// "repo_slug".
	RepoArg string `yaml:"repo_arg"`
}

// DefaultPlan returns the built-in read-only plan.
func DefaultPlan() Plan {
	return Plan{
		Global: []PlannedCall{
			{Tool: "list_projects", Args: map[string]any{}},
			{Tool: "list_repositories", Args: map[string]any{"limit": 3}},
		},
		RepoScoped: []PlannedCall{
			{Tool: "list_branches", Args: map[string]any{"limit": 5}},
			{Tool: "list_pull_requests", Args: map[string]any{"state": "OPEN", "limit": 3}},
			{Tool: "list_pipelines", Args: map[string]any{"limit": 3}},
			{Tool: "list_commits", Args: map[string]any{"limit": 5}},
			{Tool: "list_tags", Args: map[string]any{"limit": 5}},
			{Tool: "list_webhooks", Args: map[string]any{"limit": 5}},
			{Tool: "list_environments", Args: map[string]any{"limit": 5}},
		},
		RepoArg: "repo_slug",
	}
}

// LoadPlan reads a plan from a YAML file. String argument values support
// ${VAR} environment expansion.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan: %w", err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if p.RepoArg == "" {
		p.RepoArg = "repo_slug"
	}

	for i := range p.Global {
		p.Global[i].Args = expandArgs(p.Global[i].Args)
	}
	for i := range p.RepoScoped {
		p.RepoScoped[i].Args = expandArgs(p.RepoScoped[i].Args)
	}
	return p, nil
}

// expandArgs applies ${VAR} expansion to every string value, recursively.
func expandArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = expandValue(v)
	}
	return out
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return config.Expand(val)
	case map[string]any:
		return expandArgs(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = expandValue(e)
		}
		return out
	default:
		return v
	}
}
