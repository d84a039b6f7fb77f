package crs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/wrg-explorer/internal/monitoring"
)

// Loader reads every entry of a catalogue source.
type Loader interface {
	Load(ctx context.Context) ([]Entry, error)
}

// Catalogue caches the entries of a Loader. The source is read on first
// use and kept for the lifetime of the Catalogue; a failed read is retried
// on the next call.
type Catalogue struct {
	src Loader

	mu      sync.Mutex
	loaded  bool
	entries []Entry
	index   map[string]int
	folded  []string
}

// NewCatalogue returns a catalogue backed by src.
func NewCatalogue(src Loader) *Catalogue {
	return &Catalogue{src: src}
}

func (c *Catalogue) ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	entries, err := c.src.Load(ctx)
	if err != nil {
		return fmt.Errorf("load crs catalogue: %w", err)
	}
	c.entries = entries
	c.index = make(map[string]int, len(entries))
	c.folded = make([]string, len(entries))
	for i, e := range entries {
		c.index[strings.ToUpper(e.AuthName)+":"+e.Code] = i
		c.folded[i] = strings.ToLower(e.String())
	}
	c.loaded = true
	monitoring.Logf("crs catalogue loaded: %d entries", len(entries))
	return nil
}

// All returns every entry in catalogue order. The slice must not be
// modified.
func (c *Catalogue) All(ctx context.Context) ([]Entry, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	return c.entries, nil
}

// Search returns up to limit entries whose display string contains every
// word of query, ignoring case. An empty query matches everything; a limit
// of zero or less means no limit.
func (c *Catalogue) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	words := strings.Fields(strings.ToLower(query))
	var out []Entry
	for i, s := range c.folded {
		if !containsAll(s, words) {
			continue
		}
		out = append(out, c.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func containsAll(s string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

// Lookup finds the entry for an authority and code. The authority match
// ignores case.
func (c *Catalogue) Lookup(ctx context.Context, auth, code string) (Entry, error) {
	if err := c.ensure(ctx); err != nil {
		return Entry{}, err
	}
	i, ok := c.index[strings.ToUpper(auth)+":"+code]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s:%s", ErrNotFound, auth, code)
	}
	return c.entries[i], nil
}

// LookupKey is Lookup for an "AUTHORITY:CODE" string.
func (c *Catalogue) LookupKey(ctx context.Context, key string) (Entry, error) {
	auth, code, err := ParseKey(key)
	if err != nil {
		return Entry{}, err
	}
	return c.Lookup(ctx, auth, code)
}
