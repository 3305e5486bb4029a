package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestSetPlanNormalizes(t *testing.T) {
	p := New()
	err := p.SetPlan([]Item{
		{Content: "read the code"},
		{ID: "b", Content: "write the fix", Status: StatusInProgress, Priority: PriorityHigh},
	})
	if err != nil {
		t.Fatalf("set plan: %v", err)
	}

	items := p.Snapshot()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID == "" {
		t.Error("expected generated id for first item")
	}
	if items[0].Status != StatusPending || items[0].Priority != PriorityMedium {
		t.Errorf("expected pending/medium defaults, got %s/%s", items[0].Status, items[0].Priority)
	}
	if items[1].Status != StatusInProgress {
		t.Errorf("expected in_progress preserved, got %s", items[1].Status)
	}
}

func TestSetPlanRejectsBadInput(t *testing.T) {
	p := New()
	if err := p.SetPlan([]Item{{Content: "   "}}); err == nil {
		t.Error("expected error for empty content")
	}
	if err := p.SetPlan([]Item{{ID: "x", Content: "a"}, {ID: "x", Content: "b"}}); err == nil {
		t.Error("expected error for duplicate ids")
	}
	if err := p.SetPlan([]Item{{Content: "a", Status: "doing"}}); err == nil {
		t.Error("expected error for invalid status")
	}
	if err := p.SetPlan([]Item{{Content: "a", Priority: "urgent"}}); err == nil {
		t.Error("expected error for invalid priority")
	}
}

func TestSetPlanDemotesExtraInProgress(t *testing.T) {
	p := New()
	err := p.SetPlan([]Item{
		{ID: "1", Content: "first", Status: StatusInProgress},
		{ID: "2", Content: "second", Status: StatusInProgress},
		{ID: "3", Content: "third", Status: StatusInProgress},
	})
	if err != nil {
		t.Fatalf("set plan: %v", err)
	}

	inProgress := 0
	for _, it := range p.Snapshot() {
		if it.Status == StatusInProgress {
			inProgress++
			if it.ID != "3" {
				t.Errorf("expected last item to keep focus, got %s", it.ID)
			}
		}
	}
	if inProgress != 1 {
		t.Errorf("expected exactly one in_progress item, got %d", inProgress)
	}
}

func TestUpdateItemDemotesPriorFocus(t *testing.T) {
	p := New()
	if err := p.SetPlan([]Item{
		{ID: "a", Content: "first", Status: StatusInProgress},
		{ID: "b", Content: "second"},
	}); err != nil {
		t.Fatalf("set plan: %v", err)
	}

	if err := p.UpdateItem("b", StatusInProgress); err != nil {
		t.Fatalf("update: %v", err)
	}

	items := p.Snapshot()
	if items[0].Status != StatusPending {
		t.Errorf("expected prior focus demoted to pending, got %s", items[0].Status)
	}
	if items[1].Status != StatusInProgress {
		t.Errorf("expected new focus in_progress, got %s", items[1].Status)
	}
}

func TestUpdateItemUnknown(t *testing.T) {
	p := New()
	p.SetPlan([]Item{{ID: "a", Content: "only"}})

	err := p.UpdateItem("missing", StatusCompleted)
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("expected ErrUnknownItem, got %v", err)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	p := New()
	p.SetPlan([]Item{{ID: "a", Content: "work"}})

	snap := p.Snapshot()
	snap[0].Status = StatusCompleted

	if p.Snapshot()[0].Status != StatusPending {
		t.Error("mutating a snapshot must not affect the plan")
	}
}

func TestCountsAndRender(t *testing.T) {
	p := New()
	p.SetPlan([]Item{
		{ID: "1", Content: "done part", Status: StatusCompleted},
		{ID: "2", Content: "current part", Status: StatusInProgress, Priority: PriorityHigh},
		{ID: "3", Content: "next part"},
	})

	pending, inProgress, completed, cancelled := p.Counts()
	if pending != 1 || inProgress != 1 || completed != 1 || cancelled != 0 {
		t.Errorf("unexpected counts: %d/%d/%d/%d", pending, inProgress, completed, cancelled)
	}

	out := p.Render()
	if !strings.Contains(out, "- [x] done part") {
		t.Errorf("render missing completed mark: %q", out)
	}
	if !strings.Contains(out, "- [~] current part (high)") {
		t.Errorf("render missing in-progress mark: %q", out)
	}
	if !strings.Contains(out, "- [ ] next part") {
		t.Errorf("render missing pending mark: %q", out)
	}

	empty := New()
	if empty.Render() != "(no todos)" {
		t.Errorf("unexpected empty render: %q", empty.Render())
	}
}
