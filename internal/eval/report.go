// ABOUTME: Evaluation report model: per-call outcomes and the overall verdict
// ABOUTME: Immutable once a run completes; Summary rendering lives in the printer

package eval

// Outcome records the result of one planned tool invocation across both
// sessions (or one, in single-implementation mode).
type Outcome struct {
	Tool        string
	Success     bool
	Err         string
	Differences []string
}

// Report accumulates every outcome of a run.
type Report struct {
	RunID   string
	Results []Outcome
}

// Passed counts matching outcomes.
func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed counts diverging or locally failed outcomes.
func (r *Report) Failed() int {
	return len(r.Results) - r.Passed()
}

// OK reports the overall verdict: true iff every planned invocation matched.
func (r *Report) OK() bool {
	return r.Failed() == 0
}
