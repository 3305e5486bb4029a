package tools

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per tool. Overridable through configuration.
var DefaultCharLimits = map[string]int{
	"bash":        30000,
	"grep":        20000,
	"text_editor": 50000,
	"ls":          20000,
	"tree":        20000,
}

// Default line limits per tool, applied after character truncation.
var DefaultLineLimits = map[string]int{
	"bash": 256,
	"grep": 200,
}

// Default truncation modes per tool.
var defaultModes = map[string]TruncationMode{
	"bash":        TruncateHeadTail,
	"grep":        TruncateTail,
	"text_editor": TruncateHeadTail,
	"ls":          TruncateTail,
	"tree":        TruncateTail,
}

// fallbackCharLimit applies to tools with no configured limit, external
// ones included.
const fallbackCharLimit = 30000

// TruncateOutput applies character-based truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"Re-run the tool with more targeted parameters if you need the missing part.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation with a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full truncation pipeline for a tool:
// character truncation first (handles pathological cases), then line
// truncation for readability.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultCharLimits[toolName]
		if !ok {
			maxChars = fallbackCharLimit
		}
	}

	mode, ok := defaultModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	maxLines := 0
	if lineLimits != nil {
		if ml, ok := lineLimits[toolName]; ok {
			maxLines = ml
		}
	}
	if maxLines == 0 {
		if ml, ok := DefaultLineLimits[toolName]; ok {
			maxLines = ml
		}
	}
	if maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}

	return result
}
