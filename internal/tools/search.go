package tools

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// grepMaxMatches bounds how many matching lines a single search collects.
	grepMaxMatches = 1000
	// grepMaxFileSize skips files too large to scan line by line.
	grepMaxFileSize = 10 << 20
)

// fileTypeExtensions maps the grep tool's type filter to file extensions.
var fileTypeExtensions = map[string][]string{
	"go":     {".go"},
	"py":     {".py"},
	"js":     {".js", ".jsx", ".mjs", ".cjs"},
	"ts":     {".ts", ".tsx"},
	"rust":   {".rs"},
	"java":   {".java"},
	"c":      {".c", ".h"},
	"cpp":    {".cpp", ".cc", ".cxx", ".hpp", ".hh"},
	"rb":     {".rb"},
	"sh":     {".sh", ".bash"},
	"php":    {".php"},
	"md":     {".md", ".markdown"},
	"json":   {".json"},
	"yaml":   {".yaml", ".yml"},
	"html":   {".html", ".htm"},
	"css":    {".css", ".scss", ".less"},
	"sql":    {".sql"},
	"proto":  {".proto"},
	"kotlin": {".kt", ".kts"},
	"swift":  {".swift"},
}

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	WorkDir string
}

func NewGrepTool(workDir string) *GrepTool {
	return &GrepTool{WorkDir: workDir}
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search file contents with a regular expression. " +
		"ALWAYS use this tool for search tasks instead of invoking grep or rg through bash. " +
		"Supports context lines, file type filters and several output modes."
}

func (t *GrepTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "The regular expression to search for in file contents",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "File or directory to search in (defaults to the project root)",
			},
			"glob": map[string]any{
				"type":        "string",
				"description": "Glob pattern to filter files (e.g. \"*.go\")",
			},
			"output_mode": map[string]any{
				"type":        "string",
				"enum":        []string{"content", "files_with_matches", "count"},
				"description": "content shows matching lines, files_with_matches shows only file paths (default), count shows per-file match counts",
			},
			"B": map[string]any{
				"type":        "integer",
				"description": "Lines to show before each match (content mode only)",
			},
			"A": map[string]any{
				"type":        "integer",
				"description": "Lines to show after each match (content mode only)",
			},
			"C": map[string]any{
				"type":        "integer",
				"description": "Lines to show before and after each match (content mode only)",
			},
			"n": map[string]any{
				"type":        "boolean",
				"description": "Show line numbers (content mode only)",
			},
			"i": map[string]any{
				"type":        "boolean",
				"description": "Case insensitive search",
			},
			"type": map[string]any{
				"type":        "string",
				"description": "File type to search (e.g. \"go\", \"py\", \"js\")",
			},
			"head_limit": map[string]any{
				"type":        "integer",
				"description": "Limit output to the first N lines",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	pattern := GetString(params, "pattern", "")
	if pattern == "" {
		return "Error: pattern is required", nil
	}
	expr := pattern
	if GetBool(params, "i", false) {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Sprintf("Error: invalid regular expression %q: %v", pattern, err), nil
	}

	mode := GetString(params, "output_mode", "files_with_matches")
	switch mode {
	case "content", "files_with_matches", "count":
	default:
		return fmt.Sprintf("Error: unknown output_mode %q (valid: content, files_with_matches, count)", mode), nil
	}

	typeName := GetString(params, "type", "")
	if typeName != "" {
		if _, ok := fileTypeExtensions[typeName]; !ok {
			known := make([]string, 0, len(fileTypeExtensions))
			for k := range fileTypeExtensions {
				known = append(known, k)
			}
			sort.Strings(known)
			return fmt.Sprintf("Error: unknown file type %q (valid: %s)", typeName, strings.Join(known, ", ")), nil
		}
	}

	root := GetString(params, "path", "")
	if root == "" {
		root = t.WorkDir
	} else if !filepath.IsAbs(root) {
		root = filepath.Join(t.WorkDir, root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Sprintf("Error: the path %s does not exist. Please provide a valid path.", root), nil
	}

	files, err := t.collectFiles(ctx, root, info, GetString(params, "glob", ""), typeName)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	before := GetInt(params, "C", 0)
	after := before
	if before == 0 {
		before = GetInt(params, "B", 0)
		after = GetInt(params, "A", 0)
	}
	numbers := GetBool(params, "n", false)

	var lines []string
	matches := 0
	truncated := false

scan:
	for _, file := range files {
		if ctx.Err() != nil {
			return fmt.Sprintf("Error: %v", ctx.Err()), nil
		}
		fileLines, ok := readTextLines(file.abs)
		if !ok {
			continue
		}
		matched := matchLines(re, fileLines)
		if len(matched) == 0 {
			continue
		}
		switch mode {
		case "files_with_matches":
			lines = append(lines, file.rel)
			matches++
		case "count":
			lines = append(lines, fmt.Sprintf("%s:%d", file.rel, len(matched)))
			matches += len(matched)
		case "content":
			lines = append(lines, renderContent(file.rel, fileLines, matched, before, after, numbers)...)
			matches += len(matched)
		}
		if matches >= grepMaxMatches {
			truncated = true
			break scan
		}
	}

	if headLimit := GetInt(params, "head_limit", 0); headLimit > 0 && len(lines) > headLimit {
		lines = lines[:headLimit]
		truncated = true
	}
	if truncated {
		lines = append(lines, fmt.Sprintf("[... results truncated at %d lines; refine the pattern or filters ...]", len(lines)))
	}

	if len(lines) == 0 {
		return "No matches found.", nil
	}
	return fmt.Sprintf("Here's the result in %s:\n\n```\n%s\n```", root, strings.Join(lines, "\n")), nil
}

type candidateFile struct {
	abs string
	rel string
}

func (t *GrepTool) collectFiles(ctx context.Context, root string, info os.FileInfo, glob, typeName string) ([]candidateFile, error) {
	if !info.IsDir() {
		return []candidateFile{{abs: root, rel: filepath.Base(root)}}, nil
	}
	var files []candidateFile
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip entries we cannot access
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if p != root && shouldIgnore(name, DefaultIgnorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIgnore(name, DefaultIgnorePatterns) {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		if glob != "" && !matchGlob(glob, name, rel) {
			return nil
		}
		if typeName != "" && !matchType(typeName, name) {
			return nil
		}
		files = append(files, candidateFile{abs: p, rel: rel})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

// matchGlob applies the pattern to the base name, or to the relative path
// when the pattern itself contains a separator.
func matchGlob(pattern, name, rel string) bool {
	target := name
	if strings.Contains(pattern, "/") {
		target = filepath.ToSlash(rel)
	}
	ok, err := path.Match(pattern, target)
	return err == nil && ok
}

func matchType(typeName, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range fileTypeExtensions[typeName] {
		if ext == want {
			return true
		}
	}
	return false
}

// readTextLines loads a file and splits it into lines. It reports false for
// binary or oversized files.
func readTextLines(path string) ([]string, bool) {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() > grepMaxFileSize {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return nil, false
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, true
	}
	return strings.Split(text, "\n"), true
}

func matchLines(re *regexp.Regexp, lines []string) []int {
	var matched []int
	for i, line := range lines {
		if re.MatchString(line) {
			matched = append(matched, i)
		}
	}
	return matched
}

// renderContent formats matching lines the way ripgrep does in content mode:
// match lines use `path:line:text`, context lines `path-line-text`, with a
// `--` separator between discontiguous groups.
func renderContent(rel string, fileLines []string, matched []int, before, after int, numbers bool) []string {
	include := make(map[int]bool, len(matched))
	isMatch := make(map[int]bool, len(matched))
	for _, m := range matched {
		isMatch[m] = true
		lo := m - before
		if lo < 0 {
			lo = 0
		}
		hi := m + after
		if hi > len(fileLines)-1 {
			hi = len(fileLines) - 1
		}
		for i := lo; i <= hi; i++ {
			include[i] = true
		}
	}

	var out []string
	prev := -2
	for i := 0; i < len(fileLines); i++ {
		if !include[i] {
			continue
		}
		if prev >= 0 && i != prev+1 && (before > 0 || after > 0) {
			out = append(out, "--")
		}
		sep := "-"
		if isMatch[i] {
			sep = ":"
		}
		if numbers {
			out = append(out, fmt.Sprintf("%s%s%d%s%s", rel, sep, i+1, sep, fileLines[i]))
		} else {
			out = append(out, rel+sep+fileLines[i])
		}
		prev = i
	}
	return out
}
