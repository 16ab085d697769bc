// Package history keeps the most recent submissions in a YAML file.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultMax = 50

type Entry struct {
	At      time.Time `yaml:"at"`
	Targets []string  `yaml:"targets,omitempty"`
	Query   string    `yaml:"query"`
}

// History is safe for concurrent use. An empty path keeps entries in
// memory only.
type History struct {
	path string
	max  int

	mu      sync.Mutex
	entries []Entry
}

func New(path string, max int) *History {
	if max <= 0 {
		max = DefaultMax
	}
	return &History{path: path, max: max}
}

// Load reads the history file. A missing file is an empty history.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}
	b, err := os.ReadFile(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var entries []Entry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return fmt.Errorf("history: decode %s: %w", h.path, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.trim(entries)
	return nil
}

// Append records a submission and rewrites the file.
func (h *History) Append(e Entry) error {
	e.Query = strings.TrimSpace(e.Query)
	if e.Query == "" {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.trim(append(h.entries, e))
	return h.save()
}

// Entries returns a copy, oldest first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Get returns the entry at 1-based position n.
func (h *History) Get(n int) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n < 1 || n > len(h.entries) {
		return Entry{}, false
	}
	return h.entries[n-1], true
}

func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	return h.save()
}

func (h *History) trim(entries []Entry) []Entry {
	if len(entries) > h.max {
		entries = entries[len(entries)-h.max:]
	}
	return entries
}

// save writes through a temp file so a crash never leaves a torn history.
func (h *History) save() error {
	if h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}

	b, err := yaml.Marshal(h.entries)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, h.path)
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// OneLine collapses whitespace so a query fits on one line of a listing.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
