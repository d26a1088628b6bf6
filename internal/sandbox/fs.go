// Package sandbox implements the daemon's confined filesystem layer.
// Every operation passes through the permission gate's single path
// choke point; nothing here touches a path outside the configured base
// directory. The package also implements the bidirectional page ⇄
// markdown-file sync used by the export/import tasks.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mindvault/internal/logging"
	"mindvault/internal/permissions"
)

// Entry describes one directory entry returned by ListDir.
type Entry struct {
	Name        string    `json:"name"`
	IsDirectory bool      `json:"isDirectory"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"mtime"`
}

// FS performs gated filesystem operations under the sandbox root.
type FS struct {
	gate   *permissions.Gate
	events *logging.EventLogger
}

// NewFS builds the sandboxed filesystem layer.
func NewFS(gate *permissions.Gate, events *logging.EventLogger) *FS {
	return &FS{gate: gate, events: events}
}

// resolve gates the operation and maps rel onto the sandbox root.
// Denials are logged before they surface.
func (f *FS) resolve(op, rel string) (string, error) {
	if err := f.gate.AssertFileAccess(op); err != nil {
		f.events.Error(logging.EventFileDenied, "", err, map[string]any{"op": op, "path": rel})
		return "", err
	}
	abs, err := f.gate.ResolvePath(rel)
	if err != nil {
		if permissions.Denied(err) {
			f.events.Error(logging.EventFileDenied, "", err, map[string]any{"op": op, "path": rel})
		}
		return "", err
	}
	return abs, nil
}

// ReadFile reads a file under the sandbox root.
func (f *FS) ReadFile(rel string) ([]byte, error) {
	abs, err := f.resolve("fs.read", rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	f.events.Event(logging.EventFileOp, "", map[string]any{"op": "read", "path": rel, "bytes": len(data)})
	return data, nil
}

// WriteFile writes a file under the sandbox root, creating parent
// directories as needed.
func (f *FS) WriteFile(rel string, data []byte) error {
	abs, err := f.resolve("fs.write", rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	f.events.Event(logging.EventFileOp, "", map[string]any{"op": "write", "path": rel, "bytes": len(data)})
	return nil
}

// ListDir lists a directory. Entries whose stat fails are still listed
// with zero size and mtime.
func (f *FS) ListDir(rel string) ([]Entry, error) {
	abs, err := f.resolve("fs.list", rel)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := Entry{Name: de.Name(), IsDirectory: de.IsDir()}
		if info, err := de.Info(); err == nil {
			e.Size = info.Size()
			e.ModTime = info.ModTime()
		} else {
			f.events.Zap().Debug("stat failed for entry", zap.String("name", de.Name()), zap.Error(err))
		}
		entries = append(entries, e)
	}
	f.events.Event(logging.EventFileOp, "", map[string]any{"op": "list", "path": rel, "entries": len(entries)})
	return entries, nil
}

// Exists reports whether a path exists under the sandbox root.
func (f *FS) Exists(rel string) (bool, error) {
	abs, err := f.resolve("fs.exists", rel)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat path: %w", err)
	}
	return true, nil
}

// Delete removes a file or empty directory under the sandbox root.
func (f *FS) Delete(rel string) error {
	abs, err := f.resolve("fs.delete", rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	f.events.Event(logging.EventFileOp, "", map[string]any{"op": "delete", "path": rel})
	return nil
}

// EnsureDir creates a directory (and parents) under the sandbox root.
func (f *FS) EnsureDir(rel string) error {
	abs, err := f.resolve("fs.ensureDir", rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f.events.Event(logging.EventFileOp, "", map[string]any{"op": "ensureDir", "path": rel})
	return nil
}
