// Package transcript holds the append-only turn history of a session and
// derives the bounded context window fed to the reasoning provider.
package transcript

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrClosed is returned by Append once the owning session reached a
// terminal state.
var ErrClosed = errors.New("transcript is closed")

// Role tags who produced a turn.
type Role string

const (
	// RoleUser is the original instruction (always turn 0) or a
	// follow-up user message.
	RoleUser Role = "user"
	// RoleAssistant is one reasoning output together with the tool calls
	// it requested and their results.
	RoleAssistant Role = "assistant"
	// RoleSummary is a synthesized condensation of an older turn span.
	// Summary turns are derived for windows and never appended.
	RoleSummary Role = "summary"
)

// FailureKind classifies a failed tool result.
type FailureKind string

const (
	FailureInvalidArguments FailureKind = "invalid_arguments"
	FailureUnknownTool      FailureKind = "unknown_tool"
	FailureExecution        FailureKind = "execution_error"
	FailureTimeout          FailureKind = "timeout"
)

// ToolCall is one requested tool invocation. The ID is unique within the
// owning turn; the argument map carries the decoded JSON arguments.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult answers exactly one ToolCall from the same turn.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	OK       bool          `json:"ok"`
	Content  string        `json:"content"`
	Failure  FailureKind   `json:"failure,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Turn records one reasoning cycle: the role-tagged content plus the tool
// calls and results it produced. Turns are immutable once appended and
// their sequence numbers are the sole source of causal ordering.
type Turn struct {
	Seq       int          `json:"seq"`
	Role      Role         `json:"role"`
	Content   string       `json:"content"`
	ToolCalls []ToolCall   `json:"tool_calls,omitempty"`
	Results   []ToolResult `json:"results,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// UserTurn builds an unappended user turn.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn builds an unappended assistant turn covering one reasoning
// output and its tool activity.
func AssistantTurn(content string, calls []ToolCall, results []ToolResult) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls, Results: results}
}

// Transcript is the ordered, append-only turn sequence of one session.
// It is safe for concurrent use, though the agent loop itself only ever
// appends from a single goroutine.
type Transcript struct {
	mu     sync.RWMutex
	turns  []Turn
	closed bool

	// summaries caches synthesized summary turns by the span they cover
	// so repeated window computations between appends are identical.
	summaries map[spanKey]Turn
}

type spanKey struct {
	first, last int
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{summaries: make(map[spanKey]Turn)}
}

// Append assigns the next sequence number and stamps the turn. It fails
// only after Close.
func (t *Transcript) Append(turn Turn) (Turn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Turn{}, ErrClosed
	}
	turn.Seq = len(t.turns)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	t.turns = append(t.turns, turn)
	return turn, nil
}

// Close marks the transcript terminal. Further appends fail with ErrClosed;
// reads keep working so a finished session exposes its full history.
func (t *Transcript) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Closed reports whether the transcript reached its terminal state.
func (t *Transcript) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Len returns the number of appended turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Turns returns a copy of the full turn sequence.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Last returns the most recent turn, if any.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Restore replays a persisted turn sequence into an empty transcript.
// Sequence numbers must be contiguous from zero.
func (t *Transcript) Restore(turns []Turn) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if len(t.turns) > 0 {
		return fmt.Errorf("restore into non-empty transcript (%d turns)", len(t.turns))
	}
	for i, turn := range turns {
		if turn.Seq != i {
			return fmt.Errorf("restore: turn %d has sequence %d", i, turn.Seq)
		}
	}
	t.turns = append(t.turns, turns...)
	return nil
}
