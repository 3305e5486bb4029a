// Package session coordinates agent sessions: it assembles a loop from its
// collaborators, tracks the sessions running in this process, and resumes
// interrupted ones from the checkpoint store.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codewright/codewright/internal/agent"
	"github.com/codewright/codewright/internal/bus"
	"github.com/codewright/codewright/internal/checkpoint"
	"github.com/codewright/codewright/internal/mcp"
	"github.com/codewright/codewright/internal/plan"
	"github.com/codewright/codewright/internal/provider"
	"github.com/codewright/codewright/internal/tools"
	"github.com/codewright/codewright/internal/transcript"
)

// Options configures a Manager. Provider is required; Store and Bus are
// optional and disable persistence and eventing respectively when nil.
type Options struct {
	Provider provider.Provider
	Store    *checkpoint.Store
	Bus      *bus.Bus
	Logger   *slog.Logger

	Model       string
	MaxCycles   int
	MaxTokens   int
	Temperature float64
	Window      transcript.WindowOptions

	// ToolTimeout bounds one tool call in the dispatcher.
	ToolTimeout time.Duration
	// BashTimeout bounds one shell command inside the bash tool.
	BashTimeout time.Duration
	// MCPConfig is the path to the mcpServers declaration file. Empty
	// disables external tool servers.
	MCPConfig string
}

// Session is one agent run, live or finished.
type Session struct {
	id          string
	task        string
	projectRoot string

	loop       *agent.Loop
	transcript *transcript.Transcript
	planner    *plan.Plan
	cancel     context.CancelFunc

	done chan struct{}
	mu   sync.Mutex
	res  string
	err  error
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Task returns the instruction the session was started with.
func (s *Session) Task() string { return s.task }

// ProjectRoot returns the directory the session's tools operate in.
func (s *Session) ProjectRoot() string { return s.projectRoot }

// State returns the loop state.
func (s *Session) State() agent.State { return s.loop.State() }

// Cycles returns how many reasoning cycles have started.
func (s *Session) Cycles() int { return s.loop.Cycles() }

// Usage returns the accumulated provider token usage.
func (s *Session) Usage() provider.Usage { return s.loop.Usage() }

// Plan returns a snapshot of the session's todo list.
func (s *Session) Plan() []plan.Item { return s.planner.Snapshot() }

// Transcript returns a copy of the turns recorded so far.
func (s *Session) Transcript() []transcript.Turn { return s.transcript.Turns() }

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel requests cooperative termination. The session settles into
// CANCELLED at the next turn boundary.
func (s *Session) Cancel() { s.cancel() }

// Wait blocks until the session finishes or ctx ends, then returns the
// final report.
func (s *Session) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res, s.err
}

func (s *Session) finish(res string, err error) {
	s.mu.Lock()
	s.res = res
	s.err = err
	s.mu.Unlock()
	close(s.done)
}

// Status is a point-in-time view of a session, live or persisted.
type Status struct {
	ID     string
	State  agent.State
	Task   string
	Cycles int
	Plan   []plan.Item
	Result string
}

// Manager starts, resumes, and tracks sessions. Safe for concurrent use.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		opts:     opts,
		logger:   opts.Logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}
}

// Get returns a session tracked by this process.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Start launches a new session for instruction, rooted at projectRoot. The
// returned session is already running; use Wait or Done to observe it. The
// session stops when ctx is cancelled.
func (m *Manager) Start(ctx context.Context, instruction, projectRoot string) (*Session, error) {
	if instruction == "" {
		return nil, fmt.Errorf("instruction must not be empty")
	}
	root, err := resolveRoot(projectRoot)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	planner := plan.New()
	tr := transcript.New()

	registry, closeMCP, err := m.buildRegistry(ctx, root, planner)
	if err != nil {
		return nil, err
	}
	if m.opts.Store != nil {
		if err := m.opts.Store.CreateSession(id, root, instruction); err != nil {
			closeMCP()
			return nil, fmt.Errorf("create session record: %w", err)
		}
	}

	return m.launch(ctx, id, instruction, root, tr, planner, registry, closeMCP, instruction)
}

// Resume reloads an interrupted session from the checkpoint store and
// continues it: persisted turns are replayed into a fresh transcript, the
// plan snapshot is restored, and the loop picks up awaiting reasoning.
func (m *Manager) Resume(ctx context.Context, id string) (*Session, error) {
	if m.opts.Store == nil {
		return nil, fmt.Errorf("resume requires the checkpoint store")
	}
	if live, ok := m.Get(id); ok {
		select {
		case <-live.Done():
		default:
			return nil, fmt.Errorf("session %s is still running", id)
		}
	}

	rec, err := m.opts.Store.GetSession(id)
	if err != nil {
		return nil, err
	}
	turns, err := m.opts.Store.LoadTurns(id)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("session %s has no recorded turns", id)
	}

	tr := transcript.New()
	if err := tr.Restore(turns); err != nil {
		return nil, fmt.Errorf("restore transcript: %w", err)
	}
	planner := plan.New()
	if items, err := m.opts.Store.LoadPlan(id); err != nil {
		return nil, fmt.Errorf("restore plan: %w", err)
	} else if len(items) > 0 {
		if err := planner.SetPlan(items); err != nil {
			return nil, fmt.Errorf("restore plan: %w", err)
		}
	}

	registry, closeMCP, err := m.buildRegistry(ctx, rec.ProjectRoot, planner)
	if err != nil {
		return nil, err
	}
	if err := m.opts.Store.UpdateSessionStatus(id, "running", ""); err != nil {
		closeMCP()
		return nil, fmt.Errorf("reopen session record: %w", err)
	}

	m.logger.Info("resuming session", "session_id", id, "turns", len(turns))
	// Empty instruction: the restored transcript already ends at a turn
	// boundary, so the loop goes straight to its next reasoning call.
	return m.launch(ctx, id, rec.Task, rec.ProjectRoot, tr, planner, registry, closeMCP, "")
}

// Cancel requests termination of a session running in this process.
func (m *Manager) Cancel(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("no live session: %s", id)
	}
	s.Cancel()
	return nil
}

// Status reports a session by id, falling back to the checkpoint store for
// sessions this process is not running.
func (m *Manager) Status(id string) (Status, error) {
	if s, ok := m.Get(id); ok {
		st := Status{
			ID:     s.ID(),
			State:  s.State(),
			Task:   s.Task(),
			Cycles: s.Cycles(),
			Plan:   s.Plan(),
		}
		select {
		case <-s.Done():
			res, _ := s.Wait(context.Background())
			st.Result = res
		default:
		}
		return st, nil
	}

	if m.opts.Store == nil {
		return Status{}, fmt.Errorf("no live session: %s", id)
	}
	rec, err := m.opts.Store.GetSession(id)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		ID:     rec.ID,
		State:  stateForStatus(rec.Status),
		Task:   rec.Task,
		Result: rec.FinalReport,
	}
	if items, err := m.opts.Store.LoadPlan(id); err == nil {
		st.Plan = items
	}
	return st, nil
}

func (m *Manager) launch(ctx context.Context, id, task, root string, tr *transcript.Transcript, planner *plan.Plan, registry *tools.Registry, closeMCP func(), instruction string) (*Session, error) {
	runCtx, cancel := context.WithCancel(ctx)

	loop := agent.NewLoop(agent.LoopOptions{
		Provider:   m.opts.Provider,
		Registry:   registry,
		Dispatcher: tools.NewDispatcher(registry, tools.DispatcherOptions{Timeout: m.opts.ToolTimeout, Logger: m.logger}),
		Transcript: tr,
		Planner:    planner,
		Bus:        m.opts.Bus,
		Store:      store(m.opts.Store),
		SessionID:  id,

		ProjectRoot: root,
		Model:       m.opts.Model,
		MaxCycles:   m.opts.MaxCycles,
		MaxTokens:   m.opts.MaxTokens,
		Temperature: m.opts.Temperature,
		Window:      m.opts.Window,
		Logger:      m.opts.Logger,
	})

	s := &Session{
		id:          id,
		task:        task,
		projectRoot: root,
		loop:        loop,
		transcript:  tr,
		planner:     planner,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	go func() {
		defer closeMCP()
		res, err := loop.Run(runCtx, instruction)
		if err != nil {
			m.logger.Warn("session ended with error", "session_id", id, "state", loop.State(), "error", err)
		} else {
			m.logger.Info("session finished", "session_id", id, "cycles", loop.Cycles())
		}
		s.finish(res, err)
	}()

	return s, nil
}

func (m *Manager) buildRegistry(ctx context.Context, root string, planner *plan.Plan) (*tools.Registry, func(), error) {
	registry := tools.NewRegistry()
	registry.Register(tools.NewBashTool(root, m.opts.BashTimeout))
	registry.Register(tools.NewGrepTool(root))
	registry.Register(tools.NewLsTool())
	registry.Register(tools.NewTreeTool(root))
	registry.Register(tools.NewTextEditorTool())
	registry.Register(tools.NewTodoWriteTool(planner))

	closeMCP := func() {}
	if m.opts.MCPConfig != "" {
		loaded, closeAll, err := mcp.LoadTools(ctx, m.opts.MCPConfig, m.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load mcp tools: %w", err)
		}
		for _, tool := range loaded {
			registry.Register(tool)
		}
		closeMCP = closeAll
	}
	return registry, closeMCP, nil
}

// store keeps the loop's Checkpointer nil when no store is configured. A
// plain assignment would hand the loop a typed nil interface.
func store(s *checkpoint.Store) agent.Checkpointer {
	if s == nil {
		return nil
	}
	return s
}

// stateForStatus maps a persisted status string back to a loop state. A
// record still marked running belongs to an interrupted process; resuming
// it continues at the reasoning boundary, so that is the state reported.
func stateForStatus(status string) agent.State {
	switch status {
	case "completed":
		return agent.StateDone
	case "cancelled":
		return agent.StateCancelled
	case "failed":
		return agent.StateFailed
	default:
		return agent.StateAwaitingReasoning
	}
}

func resolveRoot(projectRoot string) (string, error) {
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root is not a directory: %s", abs)
	}
	return abs, nil
}
