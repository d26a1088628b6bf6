// Package permissions implements the daemon's capability gate. Three
// ordered levels control all external side effects: sandboxed grants no
// OS access, file-access grants the sandboxed filesystem, full-access
// additionally grants allowlisted process execution.
package permissions

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Level is an ordered capability tier.
type Level int

const (
	Sandboxed Level = iota
	FileAccess
	FullAccess
)

func (l Level) String() string {
	switch l {
	case FileAccess:
		return "file-access"
	case FullAccess:
		return "full-access"
	default:
		return "sandboxed"
	}
}

// ParseLevel is lenient: anything unrecognized maps to Sandboxed.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file-access", "file_access", "file":
		return FileAccess
	case "full-access", "full_access", "full":
		return FullAccess
	default:
		return Sandboxed
	}
}

// AccessError is returned for every denial: level too low, path escaping
// the sandbox, command not allowlisted, or injection patterns in
// arguments. It is never retried and maps to a client error at the
// control surface.
type AccessError struct {
	Op     string
	Reason string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied: %s: %s", e.Op, e.Reason)
}

// Denied reports whether err is (or wraps) an AccessError.
func Denied(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}

// LevelSource yields the currently configured permission level. The gate
// reads it on every check so runtime reconfiguration takes effect
// without a restart.
type LevelSource interface {
	GetString(key string) string
}

// Gate is the single policy object every external-effect operation
// consults.
type Gate struct {
	settings LevelSource
}

// NewGate builds a gate over the settings layer.
func NewGate(settings LevelSource) *Gate {
	return &Gate{settings: settings}
}

// Level returns the current permission level.
func (g *Gate) Level() Level {
	return ParseLevel(g.settings.GetString("permissions.level"))
}

// BaseDir returns the configured sandbox root ("" when unset).
func (g *Gate) BaseDir() string {
	return g.settings.GetString("sandbox.dir")
}

// AssertFileAccess fails unless level >= file-access.
func (g *Gate) AssertFileAccess(op string) error {
	if g.Level() < FileAccess {
		return &AccessError{Op: op, Reason: "requires file-access permission level"}
	}
	return nil
}

// AssertFullAccess fails unless level == full-access.
func (g *Gate) AssertFullAccess(op string) error {
	if g.Level() < FullAccess {
		return &AccessError{Op: op, Reason: "requires full-access permission level"}
	}
	return nil
}

// ResolvePath validates requested against the base directory and returns
// the absolute target. It is the single choke point for all path-based
// operations: the resolved target must be the base directory itself or
// live strictly under it.
func ResolvePath(baseDir, requested string) (string, error) {
	if baseDir == "" {
		return "", &AccessError{Op: "resolve", Reason: "no base directory configured"}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absBase = filepath.Clean(absBase)

	target := requested
	if !filepath.IsAbs(target) {
		target = filepath.Join(absBase, target)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absTarget = filepath.Clean(absTarget)

	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", &AccessError{Op: "resolve", Reason: "path traversal blocked"}
	}
	return absTarget, nil
}

// ResolvePath validates requested against the gate's configured base
// directory.
func (g *Gate) ResolvePath(requested string) (string, error) {
	return ResolvePath(g.BaseDir(), requested)
}

// Capabilities derives the capability map the control surface reports.
func (g *Gate) Capabilities() map[string]bool {
	level := g.Level()
	return map[string]bool{
		"fileRead":     level >= FileAccess,
		"fileWrite":    level >= FileAccess,
		"shell":        level >= FullAccess,
		"markdownSync": level >= FileAccess,
	}
}
