package tools

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LsTool lists a directory, directories first.
type LsTool struct{}

func NewLsTool() *LsTool { return &LsTool{} }

func (t *LsTool) Name() string { return "ls" }

func (t *LsTool) Description() string {
	return "List files and directories in a given path. " +
		"Optionally provide glob patterns to match and ignore. The path must be absolute."
}

func (t *LsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The absolute path to list. Relative paths are not allowed.",
			},
			"match": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional glob patterns; only entries matching one of them are kept",
			},
			"ignore": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional glob patterns to ignore, merged with the default ignore set",
			},
		},
		"required": []string{"path"},
	}
}

func (t *LsTool) Execute(_ context.Context, params map[string]any) (string, error) {
	dir := GetString(params, "path", "")
	if !filepath.IsAbs(dir) {
		return fmt.Sprintf("Error: the path %s is not an absolute path. Please provide an absolute path.", dir), nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Sprintf("Error: the path %s does not exist. Please provide a valid path.", dir), nil
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: the path %s is not a directory. Please provide a valid directory path.", dir), nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("Error: permission denied to access the path %s.", dir), nil
	}
	sortEntriesDirsFirst(entries)

	match := GetStringSlice(params, "match")
	ignore := append(GetStringSlice(params, "ignore"), DefaultIgnorePatterns...)

	var lines []string
	for _, entry := range entries {
		name := entry.Name()
		if len(match) > 0 && !matchAny(name, match) {
			continue
		}
		if shouldIgnore(name, ignore) {
			continue
		}
		if entry.IsDir() {
			lines = append(lines, name+"/")
		} else {
			lines = append(lines, name)
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("No items found in %s.", dir), nil
	}
	return fmt.Sprintf("Here's the result in %s:\n\n```\n%s\n```", dir, strings.Join(lines, "\n")), nil
}

// TreeTool renders a directory as a tree, the way the tree command does.
type TreeTool struct {
	WorkDir string
}

func NewTreeTool(workDir string) *TreeTool {
	return &TreeTool{WorkDir: workDir}
}

func (t *TreeTool) Name() string { return "tree" }

func (t *TreeTool) Description() string {
	return "Display a directory as a tree, similar to the tree command. " +
		"Common noise (version control, dependencies, build artifacts) is excluded automatically."
}

func (t *TreeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to display (defaults to the project root)",
			},
			"max_depth": map[string]any{
				"type":        "integer",
				"description": "Maximum depth to traverse, at most 3 recommended. Defaults to 3.",
			},
		},
	}
}

func (t *TreeTool) Execute(_ context.Context, params map[string]any) (string, error) {
	dir := GetString(params, "path", "")
	if dir == "" {
		dir = t.WorkDir
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(t.WorkDir, dir)
	}
	maxDepth := GetInt(params, "max_depth", 3)

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Sprintf("Error: Path '%s' does not exist.", dir), nil
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: Path '%s' is not a directory.", dir), nil
	}

	var treeLines []string
	renderTree(dir, "", maxDepth, 0, &treeLines)

	dirCount := 0
	for _, line := range treeLines {
		if strings.HasSuffix(strings.TrimRight(line, " "), "/") {
			dirCount++
		}
	}
	fileCount := len(treeLines) - dirCount

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	lines := append([]string{abs + "/"}, treeLines...)
	lines = append(lines, "", fmt.Sprintf("%d directories, %d files", dirCount, fileCount))

	return fmt.Sprintf("Here's the result in %s:\n\n```\n%s\n```", dir, strings.Join(lines, "\n")), nil
}

func renderTree(dir, prefix string, maxDepth, depth int, lines *[]string) {
	if maxDepth > 0 && depth >= maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		*lines = append(*lines, prefix+"[Permission Denied]")
		return
	}
	sortEntriesDirsFirst(entries)

	kept := entries[:0]
	for _, entry := range entries {
		if !shouldIgnore(entry.Name(), DefaultIgnorePatterns) {
			kept = append(kept, entry)
		}
	}

	for i, entry := range kept {
		connector, extension := "├── ", "│   "
		if i == len(kept)-1 {
			connector, extension = "└── ", "    "
		}
		if entry.IsDir() {
			*lines = append(*lines, prefix+connector+entry.Name()+"/")
			renderTree(filepath.Join(dir, entry.Name()), prefix+extension, maxDepth, depth+1, lines)
		} else {
			*lines = append(*lines, prefix+connector+entry.Name())
		}
	}
}

func sortEntriesDirsFirst(entries []os.DirEntry) {
	sort.SliceStable(entries, func(a, b int) bool {
		da, db := entries[a].IsDir(), entries[b].IsDir()
		if da != db {
			return da
		}
		return strings.ToLower(entries[a].Name()) < strings.ToLower(entries[b].Name())
	})
}

func matchAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
