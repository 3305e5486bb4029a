// Package agent implements the core agent loop: the state machine that
// alternates reasoning calls and tool dispatch until the session reaches
// a terminal state.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codewright/codewright/internal/bus"
	"github.com/codewright/codewright/internal/plan"
	"github.com/codewright/codewright/internal/provider"
	"github.com/codewright/codewright/internal/tools"
	"github.com/codewright/codewright/internal/transcript"
)

// State is the loop's execution state. A session cycles between
// AwaitingReasoning and DispatchingTools until it reaches one of the
// three terminals.
type State string

const (
	StateAwaitingReasoning State = "awaiting_reasoning"
	StateDispatchingTools  State = "dispatching_tools"
	StateDone              State = "done"
	StateFailed            State = "failed"
	StateCancelled         State = "cancelled"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

var (
	// ErrReasoningParse marks a session failed because the provider's
	// output could not be interpreted twice in a row.
	ErrReasoningParse = errors.New("reasoning response could not be interpreted")
	// ErrBudgetExceeded marks a session failed because it hit the cycle
	// ceiling without producing a final answer.
	ErrBudgetExceeded = errors.New("cycle budget exceeded")
)

// A malformed reasoning response is retried once; when the retry is
// malformed as well the session fails without a third call.
const maxReasoningAttempts = 2

const parseRetryHint = "Your previous reply could not be interpreted as either tool calls or a final answer. " +
	"Respond again: call the provided tools with valid JSON arguments, or reply with plain text when the task is finished."

// Checkpointer persists loop progress. The checkpoint store satisfies it;
// a nil Checkpointer keeps the session in memory only.
type Checkpointer interface {
	SaveTurn(sessionID string, turn transcript.Turn) error
	SavePlan(sessionID string, items []plan.Item) error
	UpdateSessionStatus(id, status, finalReport string) error
}

// LoopOptions configures a Loop.
type LoopOptions struct {
	Provider   provider.Provider
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	Transcript *transcript.Transcript
	Planner    *plan.Plan

	// Bus receives session events when set.
	Bus *bus.Bus
	// Store persists turns, plan snapshots, and the session status when set.
	Store Checkpointer
	// Summarizer overrides the default provider-backed summarizer.
	Summarizer transcript.Summarizer

	SessionID   string
	ProjectRoot string
	Model       string
	// MaxCycles is the hard ceiling on reasoning cycles. Default 50.
	MaxCycles   int
	MaxTokens   int
	Temperature float64
	Window      transcript.WindowOptions
	Logger      *slog.Logger
}

// Loop drives one session. It is not reusable: Run may be called once.
type Loop struct {
	provider   provider.Provider
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	transcript *transcript.Transcript
	planner    *plan.Plan
	bus        *bus.Bus
	store      Checkpointer
	summarizer transcript.Summarizer

	sessionID   string
	projectRoot string
	model       string
	maxCycles   int
	maxTokens   int
	temperature float64
	windowOpts  transcript.WindowOptions
	logger      *slog.Logger

	mu     sync.Mutex
	state  State
	cycles int
	usage  provider.Usage
}

// NewLoop wires a loop from its collaborators.
func NewLoop(opts LoopOptions) *Loop {
	if opts.MaxCycles <= 0 {
		opts.MaxCycles = 50
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Model == "" && opts.Provider != nil {
		opts.Model = opts.Provider.DefaultModel()
	}

	l := &Loop{
		provider:    opts.Provider,
		registry:    opts.Registry,
		dispatcher:  opts.Dispatcher,
		transcript:  opts.Transcript,
		planner:     opts.Planner,
		bus:         opts.Bus,
		store:       opts.Store,
		sessionID:   opts.SessionID,
		projectRoot: opts.ProjectRoot,
		model:       opts.Model,
		maxCycles:   opts.MaxCycles,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		windowOpts:  opts.Window,
		logger:      opts.Logger.With("component", "agent", "session_id", opts.SessionID),
		state:       StateAwaitingReasoning,
	}

	inner := opts.Summarizer
	if inner == nil {
		inner = newProviderSummarizer(opts.Provider, opts.Model, opts.Window.SummaryBudgetTokens)
	}
	l.summarizer = &eventingSummarizer{inner: inner, loop: l}

	return l
}

// SessionID returns the session this loop drives.
func (l *Loop) SessionID() string { return l.sessionID }

// State returns the current loop state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Cycles returns how many reasoning cycles have started.
func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

// Usage returns the accumulated provider token usage.
func (l *Loop) Usage() provider.Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage
}

// Run executes the session until a terminal state and returns the final
// assistant answer. A non-empty instruction is appended as the first (or
// next) user turn; an empty instruction resumes a restored transcript.
// The returned error is nil only when the session ends Done.
func (l *Loop) Run(ctx context.Context, instruction string) (string, error) {
	if instruction != "" {
		turn, err := l.transcript.Append(transcript.UserTurn(instruction))
		if err != nil {
			return l.finish("", fmt.Errorf("append instruction: %w", err))
		}
		l.persistTurn(turn)
	}
	if l.transcript.Len() == 0 {
		return l.finish("", errors.New("session has no instruction to work on"))
	}

	l.logger.Info("session started", "project_root", l.projectRoot, "model", l.model)
	l.publish(bus.EventSessionStart, map[string]any{"task": instruction, "project_root": l.projectRoot})

	answer, err := l.run(ctx)
	return l.finish(answer, err)
}

// run is the cycle loop. It returns the final answer, or an error that
// classifies the terminal state.
func (l *Loop) run(ctx context.Context) (string, error) {
	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if cycle > l.maxCycles {
			l.logger.Warn("cycle ceiling reached", "max_cycles", l.maxCycles)
			return "", fmt.Errorf("%w after %d cycles", ErrBudgetExceeded, l.maxCycles)
		}
		l.setState(StateAwaitingReasoning)
		l.mu.Lock()
		l.cycles = cycle
		l.mu.Unlock()
		l.publish(bus.EventCycleStart, map[string]any{"cycle": cycle})

		resp, err := l.reason(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		l.publish(bus.EventAssistant, map[string]any{
			"cycle":      cycle,
			"content":    resp.Content,
			"tool_calls": len(resp.ToolCalls),
		})

		if len(resp.ToolCalls) == 0 {
			turn, err := l.transcript.Append(transcript.AssistantTurn(resp.Content, nil, nil))
			if err != nil {
				return "", fmt.Errorf("append final turn: %w", err)
			}
			l.persistTurn(turn)
			l.logger.Info("session finished", "cycles", cycle)
			return resp.Content, nil
		}

		// Cancellation between reasoning and dispatch terminates at the
		// previous turn boundary; no call is left without a result.
		if err := ctx.Err(); err != nil {
			return "", err
		}
		l.setState(StateDispatchingTools)

		calls := toTranscriptCalls(resp.ToolCalls)
		for _, call := range calls {
			l.publish(bus.EventToolStart, map[string]any{"tool": call.Name, "call_id": call.ID})
		}
		results := l.dispatcher.DispatchAll(ctx, calls)
		for i, res := range results {
			l.publish(bus.EventToolEnd, map[string]any{
				"tool":        calls[i].Name,
				"call_id":     res.CallID,
				"ok":          res.OK,
				"failure":     string(res.Failure),
				"duration_ms": res.Duration.Milliseconds(),
			})
		}
		l.appendTodoReminder(calls, results)

		turn, err := l.transcript.Append(transcript.AssistantTurn(resp.Content, calls, results))
		if err != nil {
			return "", fmt.Errorf("append turn: %w", err)
		}
		l.persistTurn(turn)

		if planChanged(calls, results) {
			pending, inProgress, completed, cancelled := l.planner.Counts()
			l.publish(bus.EventPlanUpdated, map[string]any{
				"pending":     pending,
				"in_progress": inProgress,
				"completed":   completed,
				"cancelled":   cancelled,
			})
			l.persistPlan()
		}
	}
}

// reason performs one reasoning step: a provider call whose output must be
// interpretable as a final answer or tool calls. A malformed response gets
// one retry carrying a corrective hint; the retry exchange is ephemeral
// and never enters the transcript.
func (l *Loop) reason(ctx context.Context) (*provider.ChatResponse, error) {
	messages, err := l.buildMessages(ctx)
	if err != nil {
		return nil, err
	}
	req := &provider.ChatRequest{
		Model:       l.model,
		Messages:    messages,
		Tools:       toolDefinitions(l.registry),
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	}

	for attempt := 1; attempt <= maxReasoningAttempts; attempt++ {
		resp, err := l.provider.Chat(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("reasoning call failed: %w", err)
		}
		l.mu.Lock()
		l.usage.Add(resp.Usage)
		l.mu.Unlock()

		problem := classifyResponse(resp)
		if problem == "" {
			return resp, nil
		}
		l.logger.Warn("malformed reasoning response", "attempt", attempt, "problem", problem)
		retry := make([]provider.Message, 0, len(messages)+2)
		retry = append(retry, messages...)
		retry = append(retry,
			provider.Message{Role: "assistant", Content: resp.Content},
			provider.Message{Role: "user", Content: parseRetryHint},
		)
		req.Messages = retry
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrReasoningParse, maxReasoningAttempts)
}

// classifyResponse returns an empty string for an interpretable response,
// otherwise a short description of what is malformed.
func classifyResponse(resp *provider.ChatResponse) string {
	for _, call := range resp.ToolCalls {
		if strings.TrimSpace(call.Name) == "" {
			return "tool call without a name"
		}
		if call.RawArguments != "" {
			return fmt.Sprintf("arguments of %s are not a JSON object", call.Name)
		}
	}
	if len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == "" {
		return "response carries neither text nor tool calls"
	}
	return ""
}

// appendTodoReminder adds the unfinished-todos reminder to the last tool
// result when the plan has open items and this turn never touched it.
func (l *Loop) appendTodoReminder(calls []transcript.ToolCall, results []transcript.ToolResult) {
	if l.planner == nil || len(results) == 0 {
		return
	}
	for _, call := range calls {
		if call.Name == "todo_write" {
			return
		}
	}
	pending, inProgress, _, _ := l.planner.Counts()
	unfinished := pending + inProgress
	if unfinished == 0 {
		return
	}
	suffix := "s are"
	if unfinished == 1 {
		suffix = " is"
	}
	last := &results[len(results)-1]
	last.Content += fmt.Sprintf("\n\nIMPORTANT:\n- %d todo%s not completed. "+
		"Before you present the final result to the user, **make sure** all the todos are completed.\n"+
		"- Immediately update the TODO list using the `todo_write` tool.", unfinished, suffix)
}

// finish records the terminal state derived from err, closes the
// transcript, and reports the session end.
func (l *Loop) finish(answer string, err error) (string, error) {
	state := StateDone
	status := "completed"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		state = StateCancelled
		status = "cancelled"
	default:
		state = StateFailed
		status = "failed"
	}
	l.setState(state)
	l.transcript.Close()

	if l.store != nil {
		if serr := l.store.UpdateSessionStatus(l.sessionID, status, answer); serr != nil {
			l.logger.Warn("persist session status failed", "error", serr)
		}
	}

	data := map[string]any{"status": status, "cycles": l.Cycles()}
	if err != nil {
		data["error"] = err.Error()
		l.logger.Warn("session ended", "status", status, "error", err)
	}
	l.publish(bus.EventSessionEnd, data)
	return answer, err
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) publish(kind bus.EventKind, data map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(bus.Event{Kind: kind, SessionID: l.sessionID, Data: data})
}

func (l *Loop) persistTurn(turn transcript.Turn) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveTurn(l.sessionID, turn); err != nil {
		l.logger.Warn("persist turn failed", "seq", turn.Seq, "error", err)
		l.publish(bus.EventWarning, map[string]any{"warning": "turn not persisted", "seq": turn.Seq})
	}
}

func (l *Loop) persistPlan() {
	if l.store == nil || l.planner == nil {
		return
	}
	if err := l.store.SavePlan(l.sessionID, l.planner.Snapshot()); err != nil {
		l.logger.Warn("persist plan failed", "error", err)
	}
}

// toTranscriptCalls converts provider tool calls, synthesizing ids for
// providers that omit them so results stay pairable.
func toTranscriptCalls(calls []provider.ToolCall) []transcript.ToolCall {
	out := make([]transcript.ToolCall, len(calls))
	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = uuid.NewString()
		}
		out[i] = transcript.ToolCall{ID: id, Name: call.Name, Arguments: call.Arguments}
	}
	return out
}

func planChanged(calls []transcript.ToolCall, results []transcript.ToolResult) bool {
	for i, call := range calls {
		if call.Name == "todo_write" && i < len(results) && results[i].OK {
			return true
		}
	}
	return false
}

// eventingSummarizer reports each newly condensed span on the bus. The
// window cache guarantees it only fires when a new span is summarized.
type eventingSummarizer struct {
	inner transcript.Summarizer
	loop  *Loop
}

func (s *eventingSummarizer) Summarize(ctx context.Context, turns []transcript.Turn) (string, error) {
	start := time.Now()
	text, err := s.inner.Summarize(ctx, turns)
	if err != nil {
		return "", err
	}
	s.loop.logger.Info("condensed context span",
		"first_seq", turns[0].Seq, "last_seq", turns[len(turns)-1].Seq, "duration", time.Since(start))
	s.loop.publish(bus.EventSummarized, map[string]any{
		"first_seq": turns[0].Seq,
		"last_seq":  turns[len(turns)-1].Seq,
		"turns":     len(turns),
	})
	return text, nil
}
