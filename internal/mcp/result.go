// ABOUTME: Tagged ToolResult variant: structured mapping, raw text, or remote error
// ABOUTME: Fields() projects each shape into the map form the comparator consumes

package mcp

// ResultKind discriminates the three shapes a tool call can produce.
type ResultKind int

const (
	// ResultStructured holds JSON successfully decoded from the first text block.
	ResultStructured ResultKind = iota
	// ResultRaw holds text that did not decode as a JSON object.
	ResultRaw
	// ResultErrored holds the protocol error object, verbatim.
	ResultErrored
)

func (k ResultKind) String() string {
	switch k {
	case ResultStructured:
		return "structured"
	case ResultRaw:
		return "raw"
	case ResultErrored:
		return "errored"
	}
	return "unknown"
}

// ToolResult is the outcome of one tool invocation. Exactly one of the three
// payload fields is meaningful, selected by Kind.
type ToolResult struct {
	Kind       ResultKind
	Structured map[string]any
	Raw        string
	Errored    map[string]any
}

// IsError reports whether the server answered the call with a protocol error.
func (r ToolResult) IsError() bool { return r.Kind == ResultErrored }

// Fields returns the result as a flat mapping: the structured payload itself,
// {"raw": text} for undecodable text, or {"error": object} for remote errors.
func (r ToolResult) Fields() map[string]any {
	switch r.Kind {
	case ResultRaw:
		return map[string]any{"raw": r.Raw}
	case ResultErrored:
		return map[string]any{"error": r.Errored}
	default:
		return r.Structured
	}
}
