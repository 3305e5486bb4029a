package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codewright/codewright/internal/provider"
	"github.com/codewright/codewright/internal/transcript"
)

// maxSummaryInputChars bounds what one summarization call reads; larger
// spans are cut with a marker.
const maxSummaryInputChars = 24000

const summarySystemPrompt = "Condense the following span of an agent session. " +
	"Keep the decisions made, the files inspected or changed, command outcomes, and anything still unresolved. " +
	"Drop tool output bodies. Plain text, no preamble."

// providerSummarizer condenses turn spans with a bounded, tool-free
// reasoning call.
type providerSummarizer struct {
	provider  provider.Provider
	model     string
	maxTokens int
}

func newProviderSummarizer(p provider.Provider, model string, maxTokens int) *providerSummarizer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &providerSummarizer{provider: p, model: model, maxTokens: maxTokens}
}

func (s *providerSummarizer) Summarize(ctx context.Context, turns []transcript.Turn) (string, error) {
	if s.provider == nil {
		return "", errors.New("no provider configured for summarization")
	}
	req := &provider.ChatRequest{
		Model: s.model,
		Messages: []provider.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: renderTurnsForSummary(turns)},
		},
		MaxTokens: s.maxTokens,
	}
	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.New("summarizer returned empty content")
	}
	return text, nil
}

// renderTurnsForSummary flattens a turn span into compact text: one line
// per turn plus one line per tool call and result head.
func renderTurnsForSummary(turns []transcript.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&b, "[%d] %s: %s\n", turn.Seq, turn.Role, turn.Content)
		for _, call := range turn.ToolCalls {
			fmt.Fprintf(&b, "  -> %s(%v)\n", call.Name, call.Arguments)
		}
		for _, res := range turn.Results {
			outcome := "ok"
			if !res.OK {
				outcome = string(res.Failure)
			}
			fmt.Fprintf(&b, "  <- %s: %s\n", outcome, firstLine(res.Content, 200))
		}
		if b.Len() > maxSummaryInputChars {
			b.WriteString("[remaining turns trimmed]\n")
			break
		}
	}
	return b.String()
}

// firstLine returns the first line of s, capped at max characters.
func firstLine(s string, max int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
