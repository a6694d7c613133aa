// Package mirror implements the local mirror of today's tasks that the
// widget surface reads without touching the network.
//
// The mirror is one JSON file holding a list of entries. Every write is a
// full overwrite of that file, so the last writer's snapshot wins.
package mirror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/magicmac/myday/internal/schema"
)

// FileName is the default name of the mirror file inside the data dir.
const FileName = "widget_tasks.json"

// Entry is a widget-facing task with a manual sort order.
// SortOrder is only meaningful among incomplete entries.
type Entry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	CreatedAt string `json:"createdAt"`
	SortOrder int    `json:"sortOrder"`
}

// Cache reads and writes the mirror file.
// Safe for concurrent use within a process.
type Cache struct {
	path string

	mu   sync.Mutex
	last []byte // bytes most recently written or read by this process
}

// New returns a Cache backed by the file at path.
// The file is created lazily on first write.
func New(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the mirror file path.
func (c *Cache) Path() string { return c.path }

// GetEntries returns the persisted snapshot.
// A missing or corrupt file yields an empty list, never an error: the next
// sync repopulates it.
func (c *Cache) GetEntries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *Cache) read() []Entry {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return []Entry{}
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return []Entry{}
	}
	c.last = data
	return entries
}

// SaveFromServerTasks replaces the mirror with today's tasks from tasks.
// Entries already in the mirror keep their sort order. New ids get fresh
// ordinals in arrival order, starting after the pre-existing entries.
func (c *Cache) SaveFromServerTasks(tasks []schema.Task, today string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.read()
	order := make(map[string]int, len(existing))
	for _, e := range existing {
		order[e.ID] = e.SortOrder
	}

	next := len(existing)
	entries := make([]Entry, 0, len(tasks))
	for _, t := range tasks {
		if t.Day != today {
			continue
		}
		so, ok := order[t.ID]
		if !ok {
			so = next
			next++
		}
		entries = append(entries, Entry{
			ID:        t.ID,
			Text:      t.Text,
			Completed: t.Completed,
			CreatedAt: t.CreatedAt,
			SortOrder: so,
		})
	}
	return c.write(entries)
}

// SaveDirect persists entries verbatim.
func (c *Cache) SaveDirect(entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(entries)
}

// Update applies fn to the current entries and persists the result as one
// read-modify-write step.
func (c *Cache) Update(fn func([]Entry) []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(fn(c.read()))
}

// Clear empties the mirror.
func (c *Cache) Clear() error {
	return c.SaveDirect([]Entry{})
}

// Sorted returns the entries in display order: incomplete by sort order,
// then completed newest first.
func (c *Cache) Sorted() []Entry {
	return SortEntries(c.GetEntries())
}

// Reorder assigns sort orders to incomplete entries following ids.
// Ids that are unknown or completed are ignored; entries not named keep
// their sort order.
func (c *Cache) Reorder(ids []string) error {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := pos[id]; !dup {
			pos[id] = i
		}
	}
	return c.Update(func(entries []Entry) []Entry {
		for i := range entries {
			if entries[i].Completed {
				continue
			}
			if p, ok := pos[entries[i].ID]; ok {
				entries[i].SortOrder = p
			}
		}
		return entries
	})
}

// IsOwnWrite reports whether the file on disk holds exactly what this
// process last wrote or read. Used to tell external edits apart from ours.
func (c *Cache) IsOwnWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if err != nil {
		return c.last == nil
	}
	return c.last != nil && bytes.Equal(data, c.last)
}

// write replaces the file atomically (temp file + rename) so readers in
// other processes never observe a torn snapshot.
func (c *Cache) write(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mirror-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace mirror: %w", err)
	}

	c.last = data
	return nil
}

// SortEntries returns a copy of entries in display order.
func SortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		if !a.Completed && a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.CreatedAt > b.CreatedAt
	})
	return out
}

// MaxIncompleteOrder returns the highest sort order among incomplete
// entries, or -1 when there are none.
func MaxIncompleteOrder(entries []Entry) int {
	highest := -1
	for _, e := range entries {
		if !e.Completed && e.SortOrder > highest {
			highest = e.SortOrder
		}
	}
	return highest
}
