// ABOUTME: JSON-RPC 2.0 types and Transport interface for driving MCP servers
// ABOUTME: Defines Request, Notification, Response and the harness error taxonomy

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

const jsonRPCVersion = "2.0"

// requestID is the process-wide message id counter. Ids are monotonically
// increasing and shared across every transport in the process, so two
// sessions never reuse an id even if a future caller drives them in parallel.
var requestID atomic.Int64

// nextRequestID returns the next message id.
func nextRequestID() int64 {
	return requestID.Add(1)
}

// Transport abstracts the wire to one MCP server. Implementations carry a
// single outstanding request at a time; ReceiveMatching consumes the stream
// until the response for the given id arrives.
type Transport interface {
	// Send writes one request as a newline-terminated JSON line.
	Send(req *Request) error
	// Notify writes one notification (no response expected).
	Notify(n *Notification) error
	// ReceiveMatching blocks until the response whose id equals id arrives.
	// Unparsable lines are skipped, notifications are discarded, and a
	// response with any other id fails with *ProtocolError.
	ReceiveMatching(ctx context.Context, id int64) (*Response, error)
	// Close shuts the transport down. Best effort; safe to call twice.
	Close() error
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. ID is a pointer so that incoming
// notifications (no id key) are distinguishable from responses. Error is kept
// raw so the verbatim error object survives into tool results.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// HasError reports whether the response carries a non-null error member.
func (r *Response) HasError() bool {
	return len(r.Error) > 0 && string(r.Error) != "null"
}

// RPCError decodes the error member, or returns nil if there is none or it
// does not decode.
func (r *Response) RPCError() *RPCError {
	if !r.HasError() {
		return nil
	}
	var e RPCError
	if err := json.Unmarshal(r.Error, &e); err != nil {
		return nil
	}
	return &e
}

// RPCError is the decoded form of a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Tool describes a tool exposed by an MCP server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ContentItem is a piece of content in a tools/call result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// InitializeResult is returned from the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// ServerInfo identifies the MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// TransportError reports a broken stream: a failed write, or end of stream
// before a matching response arrived. Stderr carries whatever the subprocess
// wrote to its error stream, best effort.
type TransportError struct {
	Server string
	Op     string // "write" or "read"
	Stderr string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: transport %s failed", e.Server, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that no matching response arrived within the read
// bound. Distinct from end of stream: the subprocess is still running.
type TimeoutError struct {
	Server string
	ID     int64
	Limit  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no response for id %d within %s", e.Server, e.ID, e.Limit)
}

// ProtocolError reports an out-of-order response. Only one request is ever
// outstanding per session, so a response with any other id is a violation.
type ProtocolError struct {
	Server string
	Want   int64
	Got    int64
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: out-of-order response: want id %d, got %d", e.Server, e.Want, e.Got)
}

// ToolListError reports that the server answered tools/list with an error.
type ToolListError struct {
	Server string
	RPC    *RPCError
}

func (e *ToolListError) Error() string {
	if e.RPC != nil {
		return fmt.Sprintf("%s: tools/list failed: %s", e.Server, e.RPC.Error())
	}
	return fmt.Sprintf("%s: tools/list failed", e.Server)
}
