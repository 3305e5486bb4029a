package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "codewright"

	initTimeout = 30 * time.Second
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

type rpcResult struct {
	resp rpcResponse
	err  error
}

// ToolInfo describes one tool exposed by a server.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

type toolsCallResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client speaks JSON-RPC 2.0 to one MCP server over a stdio pipe pair.
// Requests carry monotonically increasing ids; the read loop routes each
// response to the waiting call.
type Client struct {
	server string
	cmd    *exec.Cmd
	stdin  io.WriteCloser

	mu       sync.Mutex
	pending  map[uint64]chan rpcResult
	nextID   uint64
	closeErr error

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// Connect launches the server process and performs the initialize handshake.
func Connect(ctx context.Context, server string, cfg ServerConfig) (*Client, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp server %s: command is required", server)
	}
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		keys := make([]string, 0, len(cfg.Env))
		for k := range cfg.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			env = append(env, k+"="+cfg.Env[k])
		}
		cmd.Env = env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", server, err)
	}

	c := newPipeClient(server, stdin, stdout)
	c.cmd = cmd
	if stderr != nil {
		go func() { _, _ = io.Copy(io.Discard, stderr) }()
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := c.initialize(initCtx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp server %s: initialize: %w", server, err)
	}
	return c, nil
}

// newPipeClient wires a client onto an existing pipe pair. Tests use it to
// talk to an in-process fake server.
func newPipeClient(server string, stdin io.WriteCloser, stdout io.Reader) *Client {
	c := &Client{
		server:  server,
		stdin:   stdin,
		pending: make(map[uint64]chan rpcResult),
		closed:  make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c
}

func (c *Client) Server() string { return c.server }

// Close shuts down the pipe and the server process.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.stdin != nil {
			_ = c.stdin.Close()
		}
		if c.cmd != nil && c.cmd.ProcessState == nil {
			_ = c.cmd.Process.Kill()
		}
		if c.cmd != nil {
			_ = c.cmd.Wait()
		}
		close(c.closed)
	})
	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": "dev",
		},
	}
	return c.call(ctx, "initialize", params, nil)
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var result toolsListResult
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool and returns the concatenated text content. A
// result flagged isError comes back as a Go error so callers treat it like
// any failing tool.
func (c *Client) CallTool(ctx context.Context, tool string, arguments map[string]any) (string, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	params := map[string]any{
		"name":      tool,
		"arguments": arguments,
	}
	var result toolsCallResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", err
	}
	var parts []string
	for _, item := range result.Content {
		if item.Type == "text" && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		if text == "" {
			text = "tool reported an error without content"
		}
		return "", errors.New(text)
	}
	return text, nil
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	ch := make(chan rpcResult, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeMessage(rpcRequest{JSONRPC: "2.0", Method: method, ID: id, Params: params}); err != nil {
		c.removePending(id)
		return err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.resp.Error != nil {
			return res.resp.Error
		}
		if result != nil && res.resp.Result != nil {
			return json.Unmarshal(res.resp.Result, result)
		}
		return nil
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	case <-c.closed:
		return c.closeError()
	}
}

func (c *Client) writeMessage(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = c.stdin.Write(data)
	return err
}

func (c *Client) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		frame, err := readFrame(reader)
		if err != nil {
			c.failPending(err)
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(frame, &resp); err != nil {
			continue
		}
		if resp.ID == 0 {
			continue // notification
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- rpcResult{resp: resp}
			close(ch)
		}
	}
}

// failPending unblocks every in-flight call when the pipe dies.
func (c *Client) failPending(err error) {
	c.mu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- rpcResult{err: err}
		close(ch)
	}
	if c.closeErr == nil {
		c.closeErr = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

func (c *Client) removePending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) closeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr == nil {
		return errors.New("mcp client closed")
	}
	return c.closeErr
}

// readFrame reads one Content-Length framed JSON message.
func readFrame(reader *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if length < 0 {
				continue
			}
			break
		}
		if after, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(after))
			if err != nil {
				return nil, err
			}
			length = n
		}
	}
	if length < 0 {
		return nil, errors.New("content-length header missing")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
