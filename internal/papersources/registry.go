package papersources

import (
	"context"
	"sync"

	"github.com/questscholar/litpipeline/internal/domain"
)

// SourceResult holds the result of a search from one source.
type SourceResult struct {
	// Source identifies which paper source provided the result.
	Source domain.SourceType

	// Result contains the search results if the search succeeded.
	// Will be nil if Error is non-nil.
	Result *SearchResult

	// Error contains the error if the search failed.
	// Will be nil if Result is non-nil.
	Error error
}

// Registry manages paper sources and coordinates concurrent searches.
// It provides thread-safe registration and retrieval of paper sources,
// as well as concurrent search operations across multiple sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource
}

// NewRegistry creates a new source registry with an empty source map.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[domain.SourceType]PaperSource),
	}
}

// Register adds a source to the registry.
// If a source with the same type already exists, it will be replaced.
// This method is thread-safe.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.SourceType()] = source
}

// Get returns a source by type, or nil if not found.
// This method is thread-safe.
func (r *Registry) Get(sourceType domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceType]
}

// EnabledSources returns the enabled sources in launch order
// (domain.SearchLaunchOrder), followed by any registered sources outside
// that order. The returned slice is a snapshot and is safe to iterate even
// if sources are added or removed concurrently.
// This method is thread-safe.
func (r *Registry) EnabledSources() []PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]PaperSource, 0, len(r.sources))
	seen := make(map[domain.SourceType]bool, len(r.sources))
	for _, st := range domain.SearchLaunchOrder {
		if source, ok := r.sources[st]; ok && source.IsEnabled() {
			sources = append(sources, source)
			seen[st] = true
		}
	}
	for st, source := range r.sources {
		if !seen[st] && source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	return sources
}

// SearchAll searches all enabled sources concurrently and returns one
// SourceResult per source, ordered by launch order regardless of completion
// order. Errors are not filtered; the caller decides how to handle them.
// The search respects context cancellation: if the context is canceled,
// ongoing searches are interrupted and their errors returned.
// This method is thread-safe.
func (r *Registry) SearchAll(ctx context.Context, params SearchParams) []SourceResult {
	sources := r.EnabledSources()
	if len(sources) == 0 {
		return nil
	}

	results := make([]SourceResult, len(sources))
	var wg sync.WaitGroup

	for i, source := range sources {
		wg.Add(1)
		go func(i int, s PaperSource) {
			defer wg.Done()

			result, err := s.Search(ctx, params)
			results[i] = SourceResult{
				Source: s.SourceType(),
				Result: result,
				Error:  err,
			}
		}(i, source)
	}

	wg.Wait()
	return results
}
