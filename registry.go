package cache

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/krisalay/artcache/internal/errs"
)

/*
Registry holds independent named caches.

It is built once at startup and passed to whoever needs a cache; there are
no package-level instances. Caches in a registry share nothing.
*/
type Registry struct {
	mu     sync.RWMutex
	caches map[string]*Cache[any]
}

func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]*Cache[any])}
}

// Register adds c under name. Names are unique.
func (r *Registry) Register(name string, c *Cache[any]) error {
	if name == "" {
		return errs.Wrap(ErrInvalidConfig, "registry name")
	}
	if c == nil {
		return errs.Wrapf(ErrInvalidConfig, "nil cache %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.caches[name]; ok {
		return errs.Wrapf(ErrDuplicateCache, "%q", name)
	}
	r.caches[name] = c
	return nil
}

// Cache returns the cache registered under name.
func (r *Registry) Cache(name string) (*Cache[any], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caches[name]
	if !ok {
		return nil, errs.Wrapf(ErrUnknownCache, "%q", name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every cache and returns their errors joined.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []error
	for _, name := range sortedKeys(r.caches) {
		if err := r.caches[name].Close(); err != nil {
			all = append(all, errs.Wrapf(err, "close cache %q", name))
		}
	}
	return errors.Join(all...)
}

func sortedKeys(m map[string]*Cache[any]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Presets returns the standard named cache settings.
func Presets() map[string]Config {
	presets := map[string]time.Duration{
		"page":        5 * time.Minute,
		"api":         5 * time.Minute,
		"image":       30 * time.Minute,
		"user":        15 * time.Minute,
		"session":     24 * time.Hour,
		"translation": 24 * time.Hour,
	}

	out := make(map[string]Config, len(presets))
	for name, ttl := range presets {
		out[name] = Config{
			Name:       name,
			Capacity:   DefaultCapacity,
			DefaultTTL: ttl,
		}
	}
	return out
}
