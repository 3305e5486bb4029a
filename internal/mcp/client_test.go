package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      uint64          `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type rpcHandler func(method string, params json.RawMessage) (any, *rpcError)

// startFakeServer wires a client to an in-process JSON-RPC peer over pipes.
func startFakeServer(t *testing.T, handle rpcHandler) *Client {
	t.Helper()
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	go func() {
		reader := bufio.NewReader(serverReader)
		for {
			frame, err := readFrame(reader)
			if err != nil {
				_ = serverWriter.Close()
				return
			}
			var req wireRequest
			if err := json.Unmarshal(frame, &req); err != nil {
				continue
			}
			result, rpcErr := handle(req.Method, req.Params)
			resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
			if rpcErr == nil {
				data, err := json.Marshal(result)
				if err != nil {
					continue
				}
				resp.Result = data
			}
			writeFrame(t, serverWriter, resp)
		}
	}()

	client := newPipeClient("fake", clientWriter, clientReader)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func writeFrame(t *testing.T, w io.Writer, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return
	}
	_, _ = w.Write(data)
}

func TestClientInitializeAndListTools(t *testing.T) {
	client := startFakeServer(t, func(method string, _ json.RawMessage) (any, *rpcError) {
		switch method {
		case "initialize":
			return map[string]any{
				"protocolVersion": protocolVersion,
				"serverInfo":      map[string]any{"name": "fake", "version": "1.0"},
			}, nil
		case "tools/list":
			return toolsListResult{Tools: []ToolInfo{{
				Name:        "fetch_page",
				Description: "Fetch a web page",
				InputSchema: map[string]any{
					"type":     "object",
					"required": []any{"url"},
				},
			}}}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "method not found"}
		}
	})

	ctx := context.Background()
	if err := client.initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "fetch_page" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
	if tools[0].InputSchema["type"] != "object" {
		t.Errorf("expected schema to round-trip, got %+v", tools[0].InputSchema)
	}
}

func TestClientCallToolJoinsTextContent(t *testing.T) {
	client := startFakeServer(t, func(method string, params json.RawMessage) (any, *rpcError) {
		if method != "tools/call" {
			return nil, &rpcError{Code: -32601, Message: "method not found"}
		}
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: -32602, Message: "bad params"}
		}
		if p.Name != "fetch_page" || p.Arguments["url"] != "https://example.com" {
			return nil, &rpcError{Code: -32602, Message: "unexpected arguments"}
		}
		return toolsCallResult{Content: []contentItem{
			{Type: "text", Text: "first chunk"},
			{Type: "text", Text: "second chunk"},
		}}, nil
	})

	out, err := client.CallTool(context.Background(), "fetch_page", map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "first chunk\nsecond chunk" {
		t.Errorf("unexpected content %q", out)
	}
}

func TestClientCallToolIsError(t *testing.T) {
	client := startFakeServer(t, func(string, json.RawMessage) (any, *rpcError) {
		return toolsCallResult{
			IsError: true,
			Content: []contentItem{{Type: "text", Text: "bad input"}},
		}, nil
	})

	_, err := client.CallTool(context.Background(), "anything", nil)
	if err == nil || !strings.Contains(err.Error(), "bad input") {
		t.Errorf("expected isError to surface as error, got %v", err)
	}
}

func TestClientServerError(t *testing.T) {
	client := startFakeServer(t, func(string, json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: -32601, Message: "method not found"}
	})

	_, err := client.ListTools(context.Background())
	if err == nil || !strings.Contains(err.Error(), "method not found") {
		t.Errorf("expected rpc error, got %v", err)
	}
}

func TestClientClosedPipeFailsPendingCalls(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()
	client := newPipeClient("dying", clientWriter, clientReader)
	t.Cleanup(func() { _ = client.Close() })

	// Swallow the request, then drop the connection.
	go func() {
		reader := bufio.NewReader(serverReader)
		_, _ = readFrame(reader)
		_ = serverWriter.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := client.ListTools(ctx)
	if err == nil {
		t.Fatal("expected error after pipe close")
	}
	if ctx.Err() != nil {
		t.Fatal("call should fail from the closed pipe, not the test timeout")
	}
}
