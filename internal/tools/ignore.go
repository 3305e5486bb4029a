package tools

import (
	"path"
	"strings"
)

// DefaultIgnorePatterns hides VCS metadata, dependency trees, build
// artifacts and caches from the filesystem tools. Callers can add their own
// patterns on top but cannot remove these.
var DefaultIgnorePatterns = []string{
	// Version control
	".git/**",
	".svn/**",
	".hg/**",
	// Dependencies
	"node_modules/**",
	"bower_components/**",
	"vendor/**",
	// Python
	"__pycache__/**",
	"*.pyc",
	"*.pyo",
	"venv/**",
	".venv/**",
	"*.egg-info/**",
	".pytest_cache/**",
	".mypy_cache/**",
	".tox/**",
	// JavaScript
	".next/**",
	".nuxt/**",
	".cache/**",
	".parcel-cache/**",
	".turbo/**",
	// Build outputs
	"dist/**",
	"build/**",
	"target/**",
	"obj/**",
	// IDE and editors
	".vscode/**",
	".idea/**",
	"*.swp",
	"*.swo",
	"*~",
	// Logs and coverage
	"*.log",
	"logs/**",
	"coverage/**",
	".nyc_output/**",
	"htmlcov/**",
	// Lockfiles
	"Cargo.lock",
	"go.sum",
	// Temporary files
	"tmp/**",
	"*.tmp",
	"*.bak",
	// OS noise
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
}

// shouldIgnore reports whether a path element matches any pattern. Directory
// patterns like "dist/**" match on the element name alone.
func shouldIgnore(name string, patterns []string) bool {
	for _, pattern := range patterns {
		clean := strings.TrimSuffix(pattern, "/**")
		clean = strings.TrimSuffix(clean, "/*")
		if ok, err := path.Match(clean, name); err == nil && ok {
			return true
		}
	}
	return false
}
