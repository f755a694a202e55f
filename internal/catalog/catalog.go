// Package catalog is the versioned directory of algorithm constructors.
//
// Entries are keyed by (name, version). Registering a key that already exists
// is a silent no-op, so packages may call their registration functions more
// than once. LatestVersion resolves to the highest registered version.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/log"
	"github.com/zjrosen/algomgr/internal/registry"
)

// LatestVersion asks Resolve and Create for the highest registered version.
const LatestVersion = -1

var (
	// ErrInvalidKey is returned for registrations with an empty name, a
	// version below 1 or a nil constructor.
	ErrInvalidKey = errors.New("invalid catalog key")
	// ErrUnknownVersion is returned when a name exists but the requested version does not.
	ErrUnknownVersion = errors.New("unknown algorithm version")
)

// Key identifies one registered algorithm version.
type Key struct {
	Name    string
	Version int
}

func (k Key) String() string {
	return fmt.Sprintf("%s v%d", k.Name, k.Version)
}

// Constructor builds a fresh Worker.
type Constructor = registry.Factory[algorithm.Worker]

// NameCategory pairs a name with the category of its highest version.
type NameCategory struct {
	Name     string
	Category string
}

// Catalog is safe for concurrent use.
type Catalog struct {
	reg *registry.TypeRegistry[Key, algorithm.Worker]

	mu         sync.RWMutex
	categories map[Key]string
	versions   map[string][]int // ascending
	names      []string         // first-registration order
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		reg:        registry.New[Key, algorithm.Worker]("algorithm"),
		categories: make(map[Key]string),
		versions:   make(map[string][]int),
	}
}

// Subscribe registers ctor under (name, version) with a display category.
func (c *Catalog) Subscribe(name string, version int, category string, ctor Constructor) error {
	if name == "" || version < 1 || ctor == nil {
		return fmt.Errorf("%w: name=%q version=%d", ErrInvalidKey, name, version)
	}
	key := Key{Name: name, Version: version}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reg.Subscribe(key, ctor); err != nil {
		if errors.Is(err, registry.ErrDuplicateKey) {
			log.Debug(log.CatCatalog, "Ignoring duplicate subscription", "name", name, "version", version)
			return nil
		}
		return err
	}

	c.categories[key] = category
	if _, seen := c.versions[name]; !seen {
		c.names = append(c.names, name)
	}
	vs := append(c.versions[name], version)
	sort.Ints(vs)
	c.versions[name] = vs

	log.Debug(log.CatCatalog, "Subscribed algorithm", "name", name, "version", version, "category", category)
	return nil
}

// SubscribeWorker builds one instance to read its name, version and
// category, then registers ctor under that key.
func (c *Catalog) SubscribeWorker(ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor", ErrInvalidKey)
	}
	w := ctor()
	if w == nil {
		return fmt.Errorf("%w: constructor returned nil", ErrInvalidKey)
	}
	return c.Subscribe(w.Name(), w.Version(), w.Category(), ctor)
}

// Unsubscribe removes (name, version).
func (c *Catalog) Unsubscribe(name string, version int) error {
	key := Key{Name: name, Version: version}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.reg.Unsubscribe(key); err != nil {
		return err
	}
	delete(c.categories, key)

	vs := slices.DeleteFunc(c.versions[name], func(v int) bool { return v == version })
	if len(vs) == 0 {
		delete(c.versions, name)
		c.names = slices.DeleteFunc(c.names, func(n string) bool { return n == name })
	} else {
		c.versions[name] = vs
	}

	log.Debug(log.CatCatalog, "Unsubscribed algorithm", "name", name, "version", version)
	return nil
}

// Resolve maps (name, version) to a registered key. LatestVersion selects
// the highest registered version.
func (c *Catalog) Resolve(name string, version int) (Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolveLocked(name, version)
}

func (c *Catalog) resolveLocked(name string, version int) (Key, error) {
	vs, ok := c.versions[name]
	if !ok || len(vs) == 0 {
		return Key{}, fmt.Errorf("algorithm %q: %w", name, registry.ErrNotFound)
	}
	if version == LatestVersion {
		return Key{Name: name, Version: vs[len(vs)-1]}, nil
	}
	if !slices.Contains(vs, version) {
		return Key{}, fmt.Errorf("%w: %s v%d (registered: %v)", ErrUnknownVersion, name, version, vs)
	}
	return Key{Name: name, Version: version}, nil
}

// Create resolves (name, version) and returns a fresh Worker.
func (c *Catalog) Create(name string, version int) (algorithm.Worker, error) {
	key, err := c.Resolve(name, version)
	if err != nil {
		return nil, err
	}
	return c.reg.Create(key)
}

// Exists reports whether (name, version) resolves. LatestVersion matches any
// registered version of name.
func (c *Catalog) Exists(name string, version int) bool {
	_, err := c.Resolve(name, version)
	return err == nil
}

// Category returns the display category of a registered key.
func (c *Catalog) Category(key Key) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cat, ok := c.categories[key]
	return cat, ok
}

// Keys returns every registered key in registration order.
func (c *Catalog) Keys() []Key {
	return c.reg.Keys()
}

// Versions returns the registered versions of name in ascending order.
func (c *Catalog) Versions(name string) []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.versions[name])
}

// NamesAndCategories lists each name once, in first-registration order,
// paired with the category of its highest version.
func (c *Catalog) NamesAndCategories() []NameCategory {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]NameCategory, 0, len(c.names))
	for _, name := range c.names {
		vs := c.versions[name]
		out = append(out, NameCategory{
			Name:     name,
			Category: c.categories[Key{Name: name, Version: vs[len(vs)-1]}],
		})
	}
	return out
}
