package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Built-in collection names.
const (
	Posts          = "posts"
	BusinessPosts  = "business_posts"
	Users          = "users"
	DirectMessages = "dms"
)

// BuiltinCollections lists the collections the server initializes at startup.
var BuiltinCollections = []string{Posts, BusinessPosts, Users, DirectMessages}

// Registry hands out one Collection per name for the life of the process.
// It is safe for concurrent use.
type Registry struct {
	backend Backend
	metrics *Metrics

	mu    sync.Mutex
	colls map[string]Collection
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics instruments every collection the registry hands out.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a Registry over b. The registry owns b and closes it
// on Close.
func NewRegistry(b Backend, opts ...RegistryOption) *Registry {
	r := &Registry{
		backend: b,
		colls:   make(map[string]Collection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the collection called name, opening it on first use. Every
// call with the same name returns the same instance.
func (r *Registry) Get(name string) (Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.colls[name]; ok {
		return c, nil
	}
	c, err := r.backend.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}
	if r.metrics != nil {
		c = r.metrics.Instrument(c)
	}
	r.colls[name] = c
	return c, nil
}

// Init opens each named collection and loads it once, so that collections
// with no persisted data are written out empty.
func (r *Registry) Init(ctx context.Context, names ...string) error {
	for _, name := range names {
		c, err := r.Get(name)
		if err != nil {
			return err
		}
		if _, err := c.LoadAll(ctx); err != nil {
			return fmt.Errorf("initializing collection %q: %w", name, err)
		}
	}
	return nil
}

// Close closes the backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
