package publish

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// PublishResult identifies the post a platform created.
type PublishResult struct {
	PostID string
	URL    string
}

// Publisher posts mapped content to one external platform.
//
// Implementations should return errors that classify correctly: HTTP
// failures should expose StatusCode() int, and rejected credentials should
// wrap errors.ErrUnauthorized.
type Publisher interface {
	// Platform returns the platform name (e.g., "devto", "hashnode").
	Platform() string

	Publish(ctx context.Context, content Content, creds Credentials) (*PublishResult, error)
}

// Registry manages publishers by platform name.
// Thread-safe for concurrent registration and lookup.
type Registry struct {
	publishers map[string]Publisher
	mu         sync.RWMutex
}

// NewRegistry creates a registry holding pubs.
func NewRegistry(pubs ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher)}
	for _, p := range pubs {
		r.Register(p)
	}
	return r
}

// Register adds a publisher under its platform name.
// Panics if one is already registered for that platform.
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Platform()
	if _, exists := r.publishers[name]; exists {
		panic(fmt.Sprintf("publisher already registered for platform: %s", name))
	}
	r.publishers[name] = p
}

// Get returns the publisher for platform, or nil.
func (r *Registry) Get(platform string) Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publishers[platform]
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
