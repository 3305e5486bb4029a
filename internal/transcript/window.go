package transcript

import (
	"context"
	"encoding/json"
	"fmt"
)

// Summarizer condenses an excluded turn span into replacement text. The
// agent wires this to a bounded, tool-free reasoning call; it must never
// recurse into another window computation.
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (string, error)
}

// WindowOptions bound the derived context window.
type WindowOptions struct {
	// BudgetTokens is the approximate token budget for the whole window.
	// Zero disables windowing and returns the full history.
	BudgetTokens int
	// RecentTurns is how many of the newest turns stay verbatim no matter
	// the budget. Minimum 1.
	RecentTurns int
	// SummaryBudgetTokens is the size the window planner reserves for a
	// synthesized summary turn; the summarizer is asked to stay under it.
	SummaryBudgetTokens int
}

// EstimateTokens approximates the provider-visible size of a turn at the
// usual four bytes per token.
func EstimateTokens(t Turn) int {
	n := len(t.Content)
	for _, c := range t.ToolCalls {
		n += len(c.Name)
		if len(c.Arguments) > 0 {
			if raw, err := json.Marshal(c.Arguments); err == nil {
				n += len(raw)
			}
		}
	}
	for _, r := range t.Results {
		n += len(r.Content)
	}
	return n/4 + 1
}

// Window derives the turn sequence to feed the reasoning provider. The
// instruction turn and the newest RecentTurns turns are always verbatim;
// when the rest exceeds the budget the oldest excluded span is replaced by
// a single summary turn. Summaries are cached against the span they cover,
// so repeated calls between appends yield identical windows.
func (t *Transcript) Window(ctx context.Context, opts WindowOptions, sum Summarizer) ([]Turn, error) {
	turns := t.Turns()
	if len(turns) == 0 {
		return nil, nil
	}
	if opts.RecentTurns < 1 {
		opts.RecentTurns = 1
	}

	total := 0
	costs := make([]int, len(turns))
	for i, turn := range turns {
		costs[i] = EstimateTokens(turn)
		total += costs[i]
	}
	if opts.BudgetTokens <= 0 || total <= opts.BudgetTokens {
		return turns, nil
	}

	// The excludable span is turns[1:end); turn 0 and the recent tail
	// never leave the window.
	end := len(turns) - opts.RecentTurns
	if end <= 1 {
		return turns, nil
	}
	if sum == nil {
		// Without a summarizer the full history is returned rather than
		// dropping turns.
		return turns, nil
	}

	summaryCost := opts.SummaryBudgetTokens
	if summaryCost <= 0 {
		summaryCost = 256
	}

	// Start from the maximal exclusion and give back the newest excluded
	// turns while the budget allows, so the span stays as small as the
	// budget permits.
	kept := costs[0] + summaryCost
	for i := end; i < len(turns); i++ {
		kept += costs[i]
	}
	k := end
	for k > 2 && kept+costs[k-1] <= opts.BudgetTokens {
		k--
		kept += costs[k]
	}

	span := turns[1:k]
	key := spanKey{first: span[0].Seq, last: span[len(span)-1].Seq}

	t.mu.RLock()
	cached, ok := t.summaries[key]
	t.mu.RUnlock()
	if !ok {
		text, err := sum.Summarize(ctx, span)
		if err != nil {
			return nil, fmt.Errorf("summarize turns %d-%d: %w", key.first, key.last, err)
		}
		cached = Turn{
			Seq:       key.first,
			Role:      RoleSummary,
			Content:   text,
			Timestamp: span[len(span)-1].Timestamp,
		}
		t.mu.Lock()
		t.summaries[key] = cached
		t.mu.Unlock()
	}

	window := make([]Turn, 0, len(turns)-len(span)+1)
	window = append(window, turns[0], cached)
	window = append(window, turns[k:]...)
	return window, nil
}
