// ABOUTME: Tests for the stdio transport over in-memory pipes, no subprocess spawned
// ABOUTME: Covers notification filtering, garbage tolerance, id mismatch, EOF, and timeout

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureWriter records everything written as stdin of the fake subprocess.
type captureWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *captureWriter) Close() error { return nil }

func (w *captureWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

// newTestTransport wires a transport over an in-memory line stream. The
// returned function feeds raw lines as if the subprocess wrote them; closing
// the channel simulates end of stream.
func newTestTransport(t *testing.T, cfg StdioConfig) (*StdioTransport, *captureWriter, chan<- string) {
	t.Helper()

	stdin := &captureWriter{}
	lines := make(chan string, 16)

	r, w := newBlockingPipe()
	tr := newTransport(stdin, r, cfg)
	go func() {
		for line := range lines {
			w.write(line + "\n")
		}
		w.close()
	}()
	t.Cleanup(func() { _ = tr.Close() })
	return tr, stdin, lines
}

// blockingPipe is a minimal io.Reader fed by write calls, EOF on close.
type blockingPipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newBlockingPipe() (*blockingPipe, *blockingPipe) {
	p := &blockingPipe{}
	p.cond = sync.NewCond(&p.mu)
	return p, p
}

func (p *blockingPipe) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.buf.Len() == 0 {
		return 0, io.EOF
	}
	return p.buf.Read(b)
}

func (p *blockingPipe) write(s string) {
	p.mu.Lock()
	p.buf.WriteString(s)
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *blockingPipe) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func TestReceiveMatching_SkipsGarbageAndNotifications(t *testing.T) {
	tr, _, lines := newTestTransport(t, StdioConfig{Server: "TypeScript", ReadTimeout: 2 * time.Second})
	defer close(lines)

	lines <- `not json{`
	lines <- `{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`
	lines <- `{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`

	resp, err := tr.ReceiveMatching(context.Background(), 7)
	if err != nil {
		t.Fatalf("ReceiveMatching: %v", err)
	}
	if resp.ID == nil || *resp.ID != 7 {
		t.Errorf("response id = %v, want 7", resp.ID)
	}
	if resp.HasError() {
		t.Error("unexpected error member on response")
	}
}

func TestReceiveMatching_OutOfOrderIsProtocolError(t *testing.T) {
	tr, _, lines := newTestTransport(t, StdioConfig{Server: "Python", ReadTimeout: 2 * time.Second})
	defer close(lines)

	lines <- `{"jsonrpc":"2.0","id":99,"result":{}}`

	_, err := tr.ReceiveMatching(context.Background(), 3)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProtocolError", err)
	}
	if perr.Want != 3 || perr.Got != 99 {
		t.Errorf("ProtocolError want/got = %d/%d, expected 3/99", perr.Want, perr.Got)
	}
	if !strings.Contains(perr.Error(), "Python") {
		t.Errorf("error %q does not name the session", perr.Error())
	}
}

func TestReceiveMatching_EOFAttachesStderr(t *testing.T) {
	tr, _, lines := newTestTransport(t, StdioConfig{Server: "TypeScript", ReadTimeout: 2 * time.Second})
	tr.drainStderr(strings.NewReader("Configuration error: missing BITBUCKET_API_TOKEN\n"))

	close(lines)

	_, err := tr.ReceiveMatching(context.Background(), 1)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if !strings.Contains(terr.Stderr, "Configuration error") {
		t.Errorf("stderr not attached: %q", terr.Stderr)
	}
	if !strings.Contains(terr.Error(), "TypeScript") {
		t.Errorf("error %q does not name the session", terr.Error())
	}
}

func TestReceiveMatching_Timeout(t *testing.T) {
	tr, _, lines := newTestTransport(t, StdioConfig{Server: "Python", ReadTimeout: 50 * time.Millisecond})
	defer close(lines)

	start := time.Now()
	_, err := tr.ReceiveMatching(context.Background(), 1)
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	var terr *TransportError
	if errors.As(err, &terr) {
		t.Error("timeout must be distinct from a transport error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %s, want ~50ms", elapsed)
	}
}

func TestReceiveMatching_ContextCancel(t *testing.T) {
	tr, _, lines := newTestTransport(t, StdioConfig{Server: "Python", ReadTimeout: 5 * time.Second})
	defer close(lines)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.ReceiveMatching(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestSend_WritesSingleFramedLine(t *testing.T) {
	tr, stdin, lines := newTestTransport(t, StdioConfig{Server: "TypeScript"})
	defer close(lines)

	err := tr.Send(&Request{ID: 12, Method: "tools/list", Params: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	out := stdin.String()
	if !strings.HasSuffix(out, "\n") {
		t.Fatalf("frame does not end with newline: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", out)
	}

	var req Request
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &req); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if req.JSONRPC != "2.0" || req.ID != 12 || req.Method != "tools/list" {
		t.Errorf("frame = %+v", req)
	}
}

func TestNotify_OmitsID(t *testing.T) {
	tr, stdin, lines := newTestTransport(t, StdioConfig{Server: "TypeScript"})
	defer close(lines)

	if err := tr.Notify(&Notification{Method: "notifications/initialized"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdin.String())), &raw); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if _, ok := raw["id"]; ok {
		t.Error("notification frame carries an id")
	}
}

func TestRequestIDsMonotonic(t *testing.T) {
	a := nextRequestID()
	b := nextRequestID()
	c := nextRequestID()
	if !(a < b && b < c) {
		t.Errorf("ids not monotonic: %d, %d, %d", a, b, c)
	}
}
