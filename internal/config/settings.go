package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Backend is the durable key/value surface the settings layer sits on.
// *store.Store satisfies it.
type Backend interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
	SettingsSnapshot() (map[string]string, error)
}

// defaults is the static table consulted when a key is absent from the
// store. Reads never fail: absent key + absent default yields "".
var defaults = map[string]string{
	"permissions.level": "sandboxed",
	"sandbox.dir":       "",

	"llm.mode":        "auto",
	"llm.local_url":   "http://localhost:11434",
	"llm.local_model": "llama3.1",
	"llm.api_url":     "https://api.openai.com/v1",
	"llm.api_key":     "",
	"llm.api_model":   "gpt-4o-mini",

	"scheduler.tick_seconds": "60",

	"task.auto-tagging.enabled":        "true",
	"task.auto-tagging.interval":       "240",
	"task.cross-reference.enabled":     "true",
	"task.cross-reference.interval":    "360",
	"task.daily-briefing.enabled":      "true",
	"task.daily-briefing.interval":     "60",
	"task.daily-briefing.hour":         "8",
	"task.recursive-learning.enabled":  "true",
	"task.recursive-learning.interval": "720",

	"learning.max_iterations": "3",
	"learning.depth":          "moderate",

	"sync.auto_import": "false",
	"sync.dir":         "notes",
}

// Settings provides typed, lenient access to the durable configuration
// table. Accessors never return errors; a missing or malformed value
// falls back to the default table, then to the zero value.
type Settings struct {
	backend Backend
}

// NewSettings wraps a backend.
func NewSettings(backend Backend) *Settings {
	return &Settings{backend: backend}
}

// Default returns the static default for a key ("" when none exists).
func Default(key string) string {
	return defaults[key]
}

// GetString returns the stored value, else the default, else "".
func (s *Settings) GetString(key string) string {
	if v, ok, err := s.backend.GetSetting(key); err == nil && ok {
		return v
	}
	return defaults[key]
}

// GetInt coerces leniently: a value that does not parse falls back to
// the default; a default that does not parse yields 0.
func (s *Settings) GetInt(key string) int {
	if v, ok, err := s.backend.GetSetting(key); err == nil && ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	n, _ := strconv.Atoi(defaults[key])
	return n
}

// GetFloat coerces like GetInt.
func (s *Settings) GetFloat(key string) float64 {
	if v, ok, err := s.backend.GetSetting(key); err == nil && ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	f, _ := strconv.ParseFloat(defaults[key], 64)
	return f
}

// GetBool accepts true/false, 1/0, yes/no, on/off, case-insensitively.
func (s *Settings) GetBool(key string) bool {
	if v, ok, err := s.backend.GetSetting(key); err == nil && ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	b, _ := parseBool(defaults[key])
	return b
}

// GetMinutes reads an integer minute count as a duration.
func (s *Settings) GetMinutes(key string) time.Duration {
	return time.Duration(s.GetInt(key)) * time.Minute
}

// Set writes one entry.
func (s *Settings) Set(key, value string) error {
	if err := s.backend.SetSetting(key, value); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Merge applies a flat key/value map, first error wins.
func (s *Settings) Merge(values map[string]string) error {
	for k, v := range values {
		if err := s.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot returns the defaults overlaid with every stored entry.
func (s *Settings) Snapshot() map[string]string {
	merged := make(map[string]string, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	stored, err := s.backend.SettingsSnapshot()
	if err != nil {
		return merged
	}
	for k, v := range stored {
		merged[k] = v
	}
	return merged
}

func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}
