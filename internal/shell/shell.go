// Package shell executes allowlisted, read-only inspection commands on
// behalf of tasks and the control surface. Commands never pass through
// a shell: arguments are scanned for injection patterns, the binary name
// is checked against a fixed allowlist, and the process is spawned by
// direct exec with a minimal environment.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mindvault/internal/logging"
	"mindvault/internal/permissions"
)

// Allowlist is the fixed set of permitted command base names. All are
// read-only inspection utilities.
var Allowlist = []string{
	"git", "rg", "grep", "ls", "find", "diff", "wc",
	"cat", "head", "tail", "du", "stat",
}

const (
	// MaxTimeout is both the default and the hard ceiling for a run.
	MaxTimeout = 30 * time.Second
	// killDelay is how long after the primary deadline the redundant
	// hard-kill timer fires.
	killDelay = 2 * time.Second
	// MaxOutputBytes caps captured stdout and stderr, each.
	MaxOutputBytes = 64 * 1024
)

// injectionPatterns are substrings that indicate an attempt to smuggle
// shell syntax through an argument. The direct-exec spawn would not
// interpret them anyway; rejecting them keeps hostile input out of the
// spawned tools entirely.
var injectionPatterns = []string{"$(", "`", ";", "&", "|", ">", "<", "\n"}

// Options tune one invocation.
type Options struct {
	Cwd     string
	Timeout time.Duration
}

// Result reports one completed invocation.
type Result struct {
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	Stdout     string   `json:"stdout"`
	Stderr     string   `json:"stderr"`
	ExitCode   int      `json:"exitCode"`
	DurationMs int64    `json:"durationMs"`
	Truncated  bool     `json:"truncated"`
}

// Runner is the gated command executor.
type Runner struct {
	gate   *permissions.Gate
	events *logging.EventLogger

	// newCommand is swapped by tests to count spawns.
	newCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewRunner builds the execution layer.
func NewRunner(gate *permissions.Gate, events *logging.EventLogger) *Runner {
	return &Runner{
		gate:       gate,
		events:     events,
		newCommand: exec.CommandContext,
	}
}

// Allowed reports whether a command's base name is allowlisted.
func Allowed(command string) bool {
	base := filepath.Base(command)
	for _, name := range Allowlist {
		if base == name {
			return true
		}
	}
	return false
}

// scanArgs rejects arguments carrying shell metacharacters.
func scanArgs(args []string) error {
	for _, arg := range args {
		for _, pattern := range injectionPatterns {
			if strings.Contains(arg, pattern) {
				return &permissions.AccessError{
					Op:     "shell.exec",
					Reason: fmt.Sprintf("argument contains injection pattern %q", pattern),
				}
			}
		}
	}
	return nil
}

// Run executes one allowlisted command. Every denial happens before any
// process is spawned.
func (r *Runner) Run(ctx context.Context, command string, args []string, opts Options) (*Result, error) {
	deny := func(err error) (*Result, error) {
		r.events.Error(logging.EventShellDenied, "", err, map[string]any{"command": command})
		return nil, err
	}

	if err := r.gate.AssertFullAccess("shell.exec"); err != nil {
		return deny(err)
	}
	if !Allowed(command) {
		return deny(&permissions.AccessError{
			Op:     "shell.exec",
			Reason: fmt.Sprintf("command %q is not allowlisted", filepath.Base(command)),
		})
	}
	if err := scanArgs(args); err != nil {
		return deny(err)
	}

	cwd := ""
	if opts.Cwd != "" {
		resolved, err := r.gate.ResolvePath(opts.Cwd)
		if err != nil {
			if permissions.Denied(err) {
				return deny(err)
			}
			return nil, err
		}
		cwd = resolved
	}

	timeout := clampTimeout(opts.Timeout)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.newCommand(execCtx, filepath.Base(command), args...)
	cmd.Dir = cwd
	cmd.Env = minimalEnv()

	var stdout, stderr cappedBuffer
	stdout.cap = MaxOutputBytes
	stderr.cap = MaxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Start()
	if runErr != nil {
		return nil, fmt.Errorf("failed to start %s: %w", command, runErr)
	}

	// Redundant hard kill in case the context cancellation is not
	// honored by the runtime.
	killTimer := time.AfterFunc(timeout+killDelay, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	})
	defer killTimer.Stop()

	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &Result{
		Command:    filepath.Base(command),
		Args:       args,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   exitCode(cmd, waitErr),
		DurationMs: duration.Milliseconds(),
		Truncated:  stdout.truncated || stderr.truncated,
	}

	r.events.Event(logging.EventShellExec, "", map[string]any{
		"command":    result.Command,
		"args":       len(args),
		"exitCode":   result.ExitCode,
		"durationMs": result.DurationMs,
		"stdoutSize": len(result.Stdout),
		"stderrSize": len(result.Stderr),
		"truncated":  result.Truncated,
		"timedOut":   errors.Is(execCtx.Err(), context.DeadlineExceeded),
	})
	return result, nil
}

// clampTimeout applies the default and the hard ceiling.
func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 || d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// minimalEnv builds the spawned process environment. The host's full
// environment is never passed through.
func minimalEnv() []string {
	env := make([]string, 0, 3)
	for _, key := range []string{"PATH", "HOME", "LANG"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// cappedBuffer captures output up to cap bytes and flags the overflow.
type cappedBuffer struct {
	buf       bytes.Buffer
	cap       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remaining := b.cap - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.truncated = true
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string { return b.buf.String() }
