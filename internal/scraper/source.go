// Package scraper runs source adapters through the filter pipeline into the store
// and records per-source health.
package scraper

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"

	"gigbot/discovery-service/internal/fetch"
	"gigbot/discovery-service/internal/model"
)

// Fetcher is the retrying, throttled, robots-aware HTTP client bound to one source.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// Source is a site adapter. Candidates yields postings lazily; a non-nil error
// without a candidate ends the run, except *ParseError which only skips one item.
type Source interface {
	Name() string
	Candidates(ctx context.Context, f Fetcher) iter.Seq2[model.Candidate, error]
}

// ParseError reports one malformed item. The run continues past it.
type ParseError struct {
	Source string
	Item   string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s: %v", e.Source, e.Item, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Registry holds the known source adapters by name.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry returns a registry holding sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any adapter with the same name.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get looks up a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select returns the sources named in enabled, in that order. Unknown names are
// returned separately so the caller can report them.
func (r *Registry) Select(enabled []string) (selected []Source, unknown []string) {
	for _, name := range enabled {
		if s, ok := r.Get(name); ok {
			selected = append(selected, s)
		} else {
			unknown = append(unknown, name)
		}
	}
	return selected, unknown
}
