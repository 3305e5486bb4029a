package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextEditorTool views, creates and edits files through atomic commands.
// Splitting edits into view / create / str_replace / insert lets the model
// recover from a failed edit by viewing more context first.
type TextEditorTool struct{}

func NewTextEditorTool() *TextEditorTool { return &TextEditorTool{} }

func (t *TextEditorTool) Name() string { return "text_editor" }

func (t *TextEditorTool) Description() string {
	return "A text editor supporting the commands view, create, str_replace and insert. " +
		"Run view again when a str_replace or insert fails. " +
		"create overwrites an existing file; str_replace with an empty new_str deletes text."
}

func (t *TextEditorTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"view", "create", "str_replace", "insert"},
				"description": "The editor command to run",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "The absolute path to the file. Only absolute paths are supported.",
			},
			"file_text": map[string]any{
				"type":        "string",
				"description": "create only: the text to write to the file",
			},
			"view_range": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "view only: [start, end] line numbers, 1-indexed, end -1 reads to the end of the file",
			},
			"old_str": map[string]any{
				"type":        "string",
				"description": "str_replace only: the exact text to replace, including whitespace and indentation",
			},
			"new_str": map[string]any{
				"type":        "string",
				"description": "str_replace and insert: the new text",
			},
			"insert_line": map[string]any{
				"type":        "integer",
				"description": "insert only: the line number after which to insert, 0 for the beginning of the file",
			},
		},
		"required": []string{"command", "path"},
	}
}

func (t *TextEditorTool) Execute(_ context.Context, params map[string]any) (string, error) {
	command := GetString(params, "command", "")
	path := GetString(params, "path", "")
	if !filepath.IsAbs(path) {
		return fmt.Sprintf("Error: The path %s is not an absolute path, it should start with `/`.", path), nil
	}

	switch command {
	case "view":
		return t.view(path, GetIntSlice(params, "view_range")), nil
	case "create":
		return t.create(path, GetString(params, "file_text", "")), nil
	case "str_replace":
		oldStr := GetString(params, "old_str", "")
		if oldStr == "" {
			return "Error: old_str is required for str_replace.", nil
		}
		return t.strReplace(path, oldStr, GetString(params, "new_str", "")), nil
	case "insert":
		if _, ok := params["insert_line"]; !ok {
			return "Error: insert_line is required for insert.", nil
		}
		return t.insert(path, GetInt(params, "insert_line", 0), GetString(params, "new_str", "")), nil
	default:
		return fmt.Sprintf("Error: invalid command: %s", command), nil
	}
}

func (t *TextEditorTool) view(path string, viewRange []int) string {
	content, errMsg := readFileForEdit(path)
	if errMsg != "" {
		return errMsg
	}

	initLine := 1
	if viewRange != nil {
		if len(viewRange) != 2 {
			return "Error: Invalid `view_range`. It should be a list of two integers."
		}
		fileLines := strings.Split(content, "\n")
		nLines := len(fileLines)
		start, end := viewRange[0], viewRange[1]
		if start < 1 || start > nLines {
			return fmt.Sprintf("Error: Invalid `view_range`: [%d, %d]. The start line `%d` should be within the range of lines in the file: [1, %d]",
				start, end, start, nLines)
		}
		if end != -1 && end < start {
			return fmt.Sprintf("Error: Invalid `view_range`: [%d, %d]. The end line `%d` should be -1 or within the range of lines in the file: [%d, %d]",
				start, end, end, start, nLines)
		}
		if end == -1 || end > nLines {
			end = nLines
		}
		content = strings.Join(fileLines[start-1:end], "\n")
		initLine = start
	}

	return fmt.Sprintf("Here's the result of running `cat -n` on %s:\n\n```\n%s\n```",
		path, numberLines(content, initLine))
}

func (t *TextEditorTool) create(path, fileText string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Sprintf("Error: the path %s is a directory. Please provide a valid file path.", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("Error writing to %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(fileText), 0o644); err != nil {
		return fmt.Sprintf("Error writing to %s: %v", path, err)
	}
	return fmt.Sprintf("File successfully created at %s.", path)
}

func (t *TextEditorTool) strReplace(path, oldStr, newStr string) string {
	content, errMsg := readFileForEdit(path)
	if errMsg != "" {
		return errMsg
	}
	occurrences := strings.Count(content, oldStr)
	if occurrences == 0 {
		return fmt.Sprintf("Error: String not found in file: %s", path)
	}
	newContent := strings.ReplaceAll(content, oldStr, newStr)
	if err := os.WriteFile(path, []byte(newContent), 0o644); err != nil {
		return fmt.Sprintf("Error writing to %s: %v", path, err)
	}
	return fmt.Sprintf("Successfully replaced %d occurrences in %s.", occurrences, path)
}

func (t *TextEditorTool) insert(path string, insertLine int, newStr string) string {
	content, errMsg := readFileForEdit(path)
	if errMsg != "" {
		return errMsg
	}
	lines := splitLines(content)
	if insertLine < 0 {
		return fmt.Sprintf("Error: Invalid insert_line: %d. Line number must be >= 0.", insertLine)
	}
	if insertLine > len(lines) {
		return fmt.Sprintf("Error: Invalid insert_line: %d. Line number cannot be greater than the number of lines in the file (%d).",
			insertLine, len(lines))
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:insertLine]...)
	out = append(out, newStr)
	out = append(out, lines[insertLine:]...)

	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")), 0o644); err != nil {
		return fmt.Sprintf("Error writing to %s: %v", path, err)
	}
	return fmt.Sprintf("Successfully inserted text at line %d in %s.", insertLine, path)
}

// readFileForEdit loads a file, returning a model-facing error message when
// the path is missing or not a regular file.
func readFileForEdit(path string) (content, errMsg string) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Sprintf("Error: File does not exist: %s", path)
	}
	if info.IsDir() {
		return "", fmt.Sprintf("Error: Path is not a file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Sprintf("Error reading %s: %v", path, err)
	}
	return string(data), ""
}

// numberLines prefixes each line with a right-aligned line number, the way
// `cat -n` renders a file.
func numberLines(content string, initLine int) string {
	lines := splitLines(content)
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("%3d %s", i+initLine, line)
	}
	return strings.Join(numbered, "\n")
}

// splitLines mimics splitting on newlines without a phantom trailing entry
// for files that end in a newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
