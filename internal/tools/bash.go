package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"
)

// DenyPatterns contains regex patterns for commands the bash tool refuses
// outright, no matter what the model asks for.
var DenyPatterns = []string{
	`\brm\s+(-[rf]+\s+)*[/~]`, // rm with root or home
	`\brm\s+-rf\s+[/*]`,       // rm -rf / or rm -rf *
	`\bdd\b.*\bof=/dev/`,      // dd to device
	`\bmkfs\b`,                // filesystem format
	`>\s*/dev/sd`,             // redirect to block device
	`\b:(){ :|:& };:\b`,       // fork bomb
	`\bshutdown\b`,
	`\breboot\b`,
	`\bhalt\b`,
}

// BashTool runs shell commands inside the project root.
type BashTool struct {
	// WorkDir is the directory commands run in unless the call overrides it.
	WorkDir string
	// Timeout bounds a single command when the caller's context carries no
	// deadline of its own. Zero means rely on the context alone.
	Timeout time.Duration

	denyRegexes []*regexp.Regexp
}

// NewBashTool creates a bash tool rooted at workDir.
func NewBashTool(workDir string, timeout time.Duration) *BashTool {
	denyRegexes := make([]*regexp.Regexp, 0, len(DenyPatterns))
	for _, pattern := range DenyPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			denyRegexes = append(denyRegexes, re)
		}
	}
	return &BashTool{
		WorkDir:     workDir,
		Timeout:     timeout,
		denyRegexes: denyRegexes,
	}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command in the project and return its output. " +
		"Commands run with `sh -c` in the project root; long-running commands are killed at the deadline."
}

func (t *BashTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Optional working directory for the command (defaults to the project root)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command := GetString(params, "command", "")
	if strings.TrimSpace(command) == "" {
		return "Error: command is required", nil
	}
	workingDir := GetString(params, "working_dir", t.WorkDir)

	for _, re := range t.denyRegexes {
		if re.MatchString(command) {
			return fmt.Sprintf("Error: command blocked by safety policy: %s", command), nil
		}
	}

	if t.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	// Own process group so the whole pipeline dies together at the deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil && cmd.Process != nil {
		// Attempt to kill stragglers in the process group.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: command timed out\n%s", result.String()), nil
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.WriteString(fmt.Sprintf("\nExit code: %d", exitErr.ExitCode()))
		} else {
			return fmt.Sprintf("Error executing command: %v", err), nil
		}
	}

	if result.Len() == 0 {
		return "(no output)", nil
	}
	return result.String(), nil
}
