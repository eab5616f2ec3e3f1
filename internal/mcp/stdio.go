// ABOUTME: Stdio transport for MCP servers under test: spawns the process and frames
// ABOUTME: newline-delimited JSON-RPC over stdin/stdout with bounded reads and stderr capture

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mauromedda/mcpdiff/internal/log"
)

const maxScannerBuffer = 10 * 1024 * 1024 // 10MB

const (
	defaultReadTimeout = 30 * time.Second
	defaultGracePeriod = 5 * time.Second
)

// StdioConfig describes how to spawn one server under test.
type StdioConfig struct {
	// Command is the full command line, program first.
	Command []string
	// Env is overlaid on the inherited process environment.
	Env map[string]string
	// ReadTimeout bounds each ReceiveMatching call. Zero means 30s.
	ReadTimeout time.Duration
	// GracePeriod bounds the SIGTERM wait in Close before SIGKILL. Zero means 5s.
	GracePeriod time.Duration
	// Server labels the transport in logs and errors, e.g. "TypeScript".
	Server string
}

// readLine carries one stdout line, or the terminal read error.
type readLine struct {
	data []byte
	err  error
}

// StdioTransport drives one subprocess over its standard streams. It owns the
// process handle and all three pipes; after Close returns nothing holds a
// reference to the subprocess.
type StdioTransport struct {
	server string
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	writeMu sync.Mutex

	lines       chan readLine
	done        chan struct{}
	readTimeout time.Duration
	grace       time.Duration

	stderrMu  sync.Mutex
	stderrBuf bytes.Buffer

	// waitDone is closed once cmd.Wait has returned. Close selects on it
	// instead of calling Wait itself, so Wait runs exactly once.
	waitDone  chan struct{}
	waitErr   error
	readWG    sync.WaitGroup
	closeOnce sync.Once
}

// StartStdio spawns the server process and returns a transport speaking
// newline-delimited JSON-RPC over its stdin/stdout.
func StartStdio(cfg StdioConfig) (*StdioTransport, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("starting %s: empty command", cfg.Server)
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s server %q: %w", cfg.Server, cfg.Command[0], err)
	}

	t := newTransport(stdin, stdout, cfg)
	t.cmd = cmd

	t.readWG.Add(1)
	go func() {
		defer t.readWG.Done()
		t.drainStderr(stderr)
	}()

	// Sole caller of cmd.Wait. Runs after both pipe readers hit EOF so Wait
	// never closes a pipe out from under them.
	go func() {
		t.readWG.Wait()
		t.waitErr = cmd.Wait()
		close(t.waitDone)
	}()

	log.Debug("%s: started pid %d: %s", cfg.Server, cmd.Process.Pid, strings.Join(cfg.Command, " "))
	return t, nil
}

// newTransport wires a transport over raw streams and starts the stdout
// reader. Used by StartStdio and, with in-memory pipes, by tests.
func newTransport(stdin io.WriteCloser, stdout io.Reader, cfg StdioConfig) *StdioTransport {
	t := &StdioTransport{
		server:      cfg.Server,
		stdin:       stdin,
		lines:       make(chan readLine),
		done:        make(chan struct{}),
		readTimeout: cfg.ReadTimeout,
		grace:       cfg.GracePeriod,
		waitDone:    make(chan struct{}),
	}
	if t.readTimeout <= 0 {
		t.readTimeout = defaultReadTimeout
	}
	if t.grace <= 0 {
		t.grace = defaultGracePeriod
	}

	t.readWG.Add(1)
	go func() {
		defer t.readWG.Done()
		t.readLoop(stdout)
	}()
	return t
}

// Send writes one request as a single newline-terminated JSON line.
func (t *StdioTransport) Send(req *Request) error {
	req.JSONRPC = jsonRPCVersion
	data, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Server: t.server, Op: "write", Err: err}
	}
	return t.writeLine(data)
}

// Notify writes one notification. Fire-and-forget: no response is awaited.
func (t *StdioTransport) Notify(n *Notification) error {
	n.JSONRPC = jsonRPCVersion
	data, err := json.Marshal(n)
	if err != nil {
		return &TransportError{Server: t.server, Op: "write", Err: err}
	}
	return t.writeLine(data)
}

func (t *StdioTransport) writeLine(data []byte) error {
	data = append(data, '\n')
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return &TransportError{Server: t.server, Op: "write", Stderr: t.stderrTail(), Err: err}
	}
	return nil
}

// ReceiveMatching blocks until the response with the given id arrives.
// Unparsable lines are logged and skipped; notifications (no id) are
// discarded; a response with any other id is a protocol violation; end of
// stream surfaces the captured stderr content.
func (t *StdioTransport) ReceiveMatching(ctx context.Context, id int64) (*Response, error) {
	timer := time.NewTimer(t.readTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, &TimeoutError{Server: t.server, ID: id, Limit: t.readTimeout}
		case ln, ok := <-t.lines:
			if !ok {
				ln.err = io.EOF
			}
			if ln.err != nil {
				return nil, &TransportError{Server: t.server, Op: "read", Stderr: t.stderrTail(), Err: ln.err}
			}

			var resp Response
			if err := json.Unmarshal(ln.data, &resp); err != nil {
				log.Debug("%s: skipping unparsable line: %.120s", t.server, ln.data)
				continue
			}
			if resp.ID == nil {
				log.Debug("%s: discarding notification", t.server)
				continue
			}
			if *resp.ID != id {
				return nil, &ProtocolError{Server: t.server, Want: id, Got: *resp.ID}
			}
			return &resp, nil
		}
	}
}

// Close shuts the subprocess down: close stdin, SIGTERM, bounded wait, then
// SIGKILL. Always best effort; never reports the exit status as a failure.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.stdin.Close()

		if t.cmd == nil || t.cmd.Process == nil {
			return
		}
		_ = t.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-t.waitDone:
			log.Debug("%s: exited", t.server)
		case <-time.After(t.grace):
			log.Warn("%s: did not exit within %s, killing", t.server, t.grace)
			_ = t.cmd.Process.Kill()
			<-t.waitDone
		}
	})
	return nil
}

// readLoop feeds stdout lines to ReceiveMatching. The terminal read error
// (EOF included) is delivered in-band before the channel closes.
func (t *StdioTransport) readLoop(stdout io.Reader) {
	defer close(t.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, maxScannerBuffer), maxScannerBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		select {
		case t.lines <- readLine{data: append([]byte(nil), line...)}:
		case <-t.done:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case t.lines <- readLine{err: err}:
	case <-t.done:
	}
}

// drainStderr captures the subprocess error stream so stream failures can
// attach it for diagnostics. Must run for the life of the process so the pipe
// never fills.
func (t *StdioTransport) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, maxScannerBuffer), maxScannerBuffer)
	for scanner.Scan() {
		t.stderrMu.Lock()
		t.stderrBuf.Write(scanner.Bytes())
		t.stderrBuf.WriteByte('\n')
		t.stderrMu.Unlock()
	}
}

// stderrTail returns the captured stderr content so far, trimmed.
func (t *StdioTransport) stderrTail() string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	return strings.TrimSpace(t.stderrBuf.String())
}
