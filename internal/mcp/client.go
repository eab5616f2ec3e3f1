// ABOUTME: MCP client for one server under test: initialize handshake, tool listing, tool calls
// ABOUTME: CallTool unwraps the content-block envelope into a tagged ToolResult

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mauromedda/mcpdiff/internal/log"
)

const protocolVersion = "2024-11-05"

// Client drives a single MCP server through its transport. Calls are issued
// one at a time; the client never has more than one request outstanding.
type Client struct {
	name      string
	transport Transport

	serverInfo ServerInfo
	initErr    *RPCError
	ready      bool
}

// NewClient creates a client for the named implementation ("Python",
// "TypeScript") over the given transport.
func NewClient(name string, t Transport) *Client {
	return &Client{name: name, transport: t}
}

// Name returns the implementation label.
func (c *Client) Name() string { return c.name }

// ServerInfo returns the identity reported during the handshake, if any.
func (c *Client) ServerInfo() ServerInfo { return c.serverInfo }

// InitializeError returns the error the server reported during initialize,
// or nil. An initialize error does not prevent the session from proceeding;
// some servers legitimately report configuration problems here.
func (c *Client) InitializeError() *RPCError { return c.initErr }

// Connect performs the handshake: initialize request, then the initialized
// notification. Any response, success or error, completes the handshake.
func (c *Client) Connect(ctx context.Context) error {
	params, _ := json.Marshal(map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    "mcpdiff",
			"version": "1.0.0",
		},
	})

	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("%s: initialize: %w", c.name, err)
	}

	if resp.HasError() {
		c.initErr = resp.RPCError()
		log.Warn("%s: initialize reported error: %v", c.name, c.initErr)
	} else {
		var result InitializeResult
		if err := json.Unmarshal(resp.Result, &result); err == nil {
			c.serverInfo = result.ServerInfo
		}
	}

	if err := c.transport.Notify(&Notification{Method: "notifications/initialized", Params: json.RawMessage(`{}`)}); err != nil {
		return fmt.Errorf("%s: initialized notification: %w", c.name, err)
	}

	c.ready = true
	return nil
}

// ListTools requests the tool list. A remote error fails with *ToolListError;
// an absent tools member is an empty list, not a failure.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.call(ctx, "tools/list", json.RawMessage(`{}`))
	if err != nil {
		return nil, fmt.Errorf("%s: tools/list: %w", c.name, err)
	}
	if resp.HasError() {
		return nil, &ToolListError{Server: c.name, RPC: resp.RPCError()}
	}

	var result struct {
		Tools []Tool `json:"tools"`
	}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("%s: parsing tools list: %w", c.name, err)
		}
	}
	return result.Tools, nil
}

// CallTool invokes a tool. A remote error is data, not a local failure: it
// comes back as an Errored result carrying the error object verbatim.
// Otherwise the first text content block is decoded as JSON, falling back to
// a Raw result when it does not decode.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (ToolResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	params, err := json.Marshal(map[string]any{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("%s: encoding %s arguments: %w", c.name, name, err)
	}

	resp, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return ToolResult{}, fmt.Errorf("%s: tools/call %s: %w", c.name, name, err)
	}
	if resp.HasError() {
		var errObj map[string]any
		if err := json.Unmarshal(resp.Error, &errObj); err != nil {
			errObj = map[string]any{"message": string(resp.Error)}
		}
		return ToolResult{Kind: ResultErrored, Errored: errObj}, nil
	}

	var envelope struct {
		Content []ContentItem `json:"content"`
	}
	if len(resp.Result) > 0 {
		_ = json.Unmarshal(resp.Result, &envelope)
	}

	if len(envelope.Content) > 0 {
		text := envelope.Content[0].Text
		var structured map[string]any
		if err := json.Unmarshal([]byte(text), &structured); err != nil {
			return ToolResult{Kind: ResultRaw, Raw: text}, nil
		}
		return ToolResult{Kind: ResultStructured, Structured: structured}, nil
	}

	// No content blocks: the result object itself is the payload.
	var structured map[string]any
	if err := json.Unmarshal(resp.Result, &structured); err != nil {
		return ToolResult{Kind: ResultRaw, Raw: string(resp.Result)}, nil
	}
	return ToolResult{Kind: ResultStructured, Structured: structured}, nil
}

// Close shuts the transport (and its subprocess) down. Best effort.
func (c *Client) Close() error {
	c.ready = false
	return c.transport.Close()
}

// call issues one request and blocks for its response.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (*Response, error) {
	req := &Request{
		ID:     nextRequestID(),
		Method: method,
		Params: params,
	}
	if err := c.transport.Send(req); err != nil {
		return nil, err
	}
	return c.transport.ReceiveMatching(ctx, req.ID)
}
