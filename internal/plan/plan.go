// Package plan maintains the agent's todo list: an ordered set of plan
// items with at most one item in progress at a time. The planner holds only
// current state; past plan states live in the session transcript.
package plan

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownItem is returned when an update names an id that is not in the
// current plan.
var ErrUnknownItem = errors.New("unknown plan item")

// Status is the lifecycle state of a plan item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Priority orders items by urgency when the model restates the plan.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Item is one todo entry.
type Item struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
}

// Plan is the ordered item list for one session. Safe for concurrent reads
// from the control surface while the loop mutates it.
type Plan struct {
	mu    sync.RWMutex
	items []Item
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{}
}

// SetPlan replaces the full ordered list, normalizing missing fields and
// enforcing the single-in-progress rule: when several items arrive
// in_progress the last one keeps the focus and earlier ones are demoted to
// pending.
func (p *Plan) SetPlan(items []Item) error {
	normalized := make([]Item, len(items))
	seen := make(map[string]bool, len(items))
	lastInProgress := -1
	for i, it := range items {
		if strings.TrimSpace(it.Content) == "" {
			return fmt.Errorf("item %d has empty content", i)
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if seen[it.ID] {
			return fmt.Errorf("duplicate item id %q", it.ID)
		}
		seen[it.ID] = true
		if it.Status == "" {
			it.Status = StatusPending
		}
		if !validStatus(it.Status) {
			return fmt.Errorf("item %q has invalid status %q", it.ID, it.Status)
		}
		if it.Priority == "" {
			it.Priority = PriorityMedium
		}
		if !validPriority(it.Priority) {
			return fmt.Errorf("item %q has invalid priority %q", it.ID, it.Priority)
		}
		if it.Status == StatusInProgress {
			lastInProgress = i
		}
		normalized[i] = it
	}
	for i := range normalized {
		if normalized[i].Status == StatusInProgress && i != lastInProgress {
			normalized[i].Status = StatusPending
		}
	}

	p.mu.Lock()
	p.items = normalized
	p.mu.Unlock()
	return nil
}

// UpdateItem changes one item's status. Marking an item in_progress demotes
// any other in-progress item to pending.
func (p *Plan) UpdateItem(id string, status Status) error {
	if !validStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	target := -1
	for i := range p.items {
		if p.items[i].ID == id {
			target = i
			break
		}
	}
	if target < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if status == StatusInProgress {
		for i := range p.items {
			if i != target && p.items[i].Status == StatusInProgress {
				p.items[i].Status = StatusPending
			}
		}
	}
	p.items[target].Status = status
	return nil
}

// Snapshot returns a read-only copy of the current ordered items.
func (p *Plan) Snapshot() []Item {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of items.
func (p *Plan) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Counts reports how many items sit in each status.
func (p *Plan) Counts() (pending, inProgress, completed, cancelled int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, it := range p.items {
		switch it.Status {
		case StatusPending:
			pending++
		case StatusInProgress:
			inProgress++
		case StatusCompleted:
			completed++
		case StatusCancelled:
			cancelled++
		}
	}
	return
}

// Render formats the plan as a checklist for reasoning input.
func (p *Plan) Render() string {
	items := p.Snapshot()
	if len(items) == 0 {
		return "(no todos)"
	}
	var b strings.Builder
	for _, it := range items {
		mark := " "
		switch it.Status {
		case StatusInProgress:
			mark = "~"
		case StatusCompleted:
			mark = "x"
		case StatusCancelled:
			mark = "-"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", mark, it.Content, it.Priority)
	}
	return strings.TrimRight(b.String(), "\n")
}
