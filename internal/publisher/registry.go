package publisher

import (
	"context"
	"sort"
	"sync"

	"github.com/watzon/clipcast/internal/browser"
)

// Media is a video available on local disk.
type Media struct {
	ID   string
	Path string
}

// Driver publishes to one platform inside an already open browser session.
type Driver interface {
	Platform() string
	Publish(ctx context.Context, s browser.Session, m Media, caption string) error
}

// Registry maps platform names to drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates a registry holding drivers.
func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	for _, d := range drivers {
		r.Register(d)
	}
	return r
}

// Register adds d, replacing any driver for the same platform.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Platform()] = d
}

// Lookup returns the driver for platform.
func (r *Registry) Lookup(platform string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[platform]
	return d, ok
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
