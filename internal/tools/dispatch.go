package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/codewright/codewright/internal/transcript"
)

// Dispatcher routes tool calls to registered tools. Every call is looked
// up, schema-validated, and run under a bounded deadline; the outcome is
// normalized into a ToolResult so per-call failures stay recoverable data
// for the next reasoning cycle. Dispatch never retries; side effects of a
// timed-out call are not rolled back.
type Dispatcher struct {
	registry   *Registry
	timeout    time.Duration
	charLimits map[string]int
	lineLimits map[string]int
	logger     *slog.Logger
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Timeout bounds every single tool call. Default 60s.
	Timeout time.Duration
	// CharLimits / LineLimits override the per-tool output caps.
	CharLimits map[string]int
	LineLimits map[string]int
	Logger     *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:   registry,
		timeout:    opts.Timeout,
		charLimits: opts.CharLimits,
		lineLimits: opts.LineLimits,
		logger:     opts.Logger.With("component", "dispatcher"),
	}
}

// Dispatch runs one tool call to completion, returning exactly one result.
// Unknown tools and invalid arguments fail without invoking any tool code.
func (d *Dispatcher) Dispatch(ctx context.Context, call transcript.ToolCall) transcript.ToolResult {
	start := time.Now()

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		return transcript.ToolResult{
			CallID:   call.ID,
			Failure:  transcript.FailureUnknownTool,
			Content:  fmt.Sprintf("Error: unknown tool %q. Available tools: %s", call.Name, strings.Join(d.registry.Names(), ", ")),
			Duration: time.Since(start),
		}
	}

	if violations := ValidateArguments(tool.Parameters(), call.Arguments); len(violations) > 0 {
		d.logger.Warn("invalid tool arguments", "tool", call.Name, "call_id", call.ID, "violations", len(violations))
		return transcript.ToolResult{
			CallID:   call.ID,
			Failure:  transcript.FailureInvalidArguments,
			Content:  fmt.Sprintf("Error: invalid arguments for %s:\n- %s", call.Name, strings.Join(violations, "\n- ")),
			Duration: time.Since(start),
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	// Buffered so an abandoned execution can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		content, err := tool.Execute(callCtx, call.Arguments)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		result := transcript.ToolResult{
			CallID:   call.ID,
			Content:  TruncateToolOutput(out.content, call.Name, d.charLimits, d.lineLimits),
			Duration: time.Since(start),
		}
		if out.err != nil {
			result.Failure = transcript.FailureExecution
			if result.Content == "" {
				result.Content = "Error: " + out.err.Error()
			}
			d.logger.Warn("tool failed", "tool", call.Name, "call_id", call.ID, "error", out.err)
		} else {
			result.OK = true
			d.logger.Debug("tool finished", "tool", call.Name, "call_id", call.ID, "duration", result.Duration)
		}
		return result
	case <-callCtx.Done():
		elapsed := time.Since(start)
		if callCtx.Err() == context.DeadlineExceeded {
			d.logger.Warn("tool timed out", "tool", call.Name, "call_id", call.ID, "timeout", d.timeout)
			return transcript.ToolResult{
				CallID:   call.ID,
				Failure:  transcript.FailureTimeout,
				Content:  fmt.Sprintf("Error: %s did not complete within %s and was cancelled. Side effects it already performed were not rolled back.", call.Name, d.timeout),
				Duration: elapsed,
			}
		}
		return transcript.ToolResult{
			CallID:   call.ID,
			Failure:  transcript.FailureExecution,
			Content:  fmt.Sprintf("Error: %s was cancelled before completion.", call.Name),
			Duration: elapsed,
		}
	}
}

// DispatchAll runs all calls of one turn concurrently and collects a
// result for every call, positionally matched to the input.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []transcript.ToolCall) []transcript.ToolResult {
	results := make([]transcript.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call transcript.ToolCall) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// ValidateArguments checks an argument map against a tool's JSON schema
// and returns one message per violation. An empty schema accepts anything.
func ValidateArguments(schema map[string]any, args map[string]any) []string {
	if len(schema) == 0 {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	// Round-trip both documents through encoding/json so the validator
	// sees canonical JSON types.
	schemaDoc, err := roundTrip(schema)
	if err != nil {
		return []string{fmt.Sprintf("schema is not valid JSON: %v", err)}
	}
	payload, err := roundTrip(args)
	if err != nil {
		return []string{fmt.Sprintf("arguments are not valid JSON: %v", err)}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return []string{fmt.Sprintf("add schema resource: %v", err)}
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return []string{fmt.Sprintf("compile schema: %v", err)}
	}

	if err := compiled.Validate(payload); err != nil {
		return violationLines(err)
	}
	return nil
}

func roundTrip(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// violationLines flattens a validation error into one line per violation.
func violationLines(err error) []string {
	lines := strings.Split(err.Error(), "\n")
	var out []string
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		ln = strings.TrimPrefix(ln, "- ")
		if ln == "" || strings.HasPrefix(ln, "jsonschema validation failed") {
			continue
		}
		out = append(out, ln)
	}
	if len(out) == 0 {
		out = []string{err.Error()}
	}
	return out
}
