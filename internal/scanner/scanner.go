package scanner

import (
	"context"
	"fmt"
	"time"

	"newsradar/internal/domain"
	"newsradar/internal/ports"
)

// Request carries all parameters required to execute one listing pass.
type Request struct {
	// Window bounds how far back candidates may be published.
	Window time.Duration
	// Max caps how many candidates the strategy may yield.
	Max int
	// Extended enables the browser-automation strategy where one exists.
	Extended bool
}

// Scanner captures a single source strategy (AAStocks listing, feed bridge).
type Scanner interface {
	Source() domain.Source
	List(ctx context.Context, req Request) ports.ListResult
}

// Registry maps each member of the closed source set to its strategy.
// Adding a source means registering a new implementation here, not adding
// string branches at call sites.
type Registry struct {
	scanners map[domain.Source]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[domain.Source]Scanner{}}
}

// Register adds or replaces a strategy for its source.
func (r *Registry) Register(s Scanner) {
	if r.scanners == nil {
		r.scanners = map[domain.Source]Scanner{}
	}
	r.scanners[s.Source()] = s
}

// Resolve returns the strategy for a source or an error if absent.
func (r *Registry) Resolve(source domain.Source) (Scanner, error) {
	if s, ok := r.scanners[source]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no scanner registered for source %s", source)
}
