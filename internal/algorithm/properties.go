package algorithm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// Property is a declared, string-valued algorithm input.
type Property struct {
	Name      string
	Default   string
	Doc       string
	Mandatory bool
	Value     string
	Set       bool
}

// Effective returns the explicit value if one was set, otherwise the default.
func (p Property) Effective() string {
	if p.Set {
		return p.Value
	}
	return p.Default
}

// PropertyOption adjusts a declaration.
type PropertyOption func(*Property)

// Mandatory marks a property as required before a run may start.
func Mandatory() PropertyOption {
	return func(p *Property) { p.Mandatory = true }
}

// Properties is the declared configuration of a worker or handle.
// It is safe for concurrent use.
type Properties struct {
	mu    sync.RWMutex
	order []string
	props map[string]*Property
}

// NewProperties returns an empty property set.
func NewProperties() *Properties {
	return &Properties{props: make(map[string]*Property)}
}

// Declare adds a property. Redeclaring a name replaces its metadata but keeps
// any value already set.
func (ps *Properties) Declare(name, def, doc string, opts ...PropertyOption) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p := &Property{Name: name, Default: def, Doc: doc}
	for _, opt := range opts {
		opt(p)
	}
	if old, ok := ps.props[name]; ok {
		p.Value, p.Set = old.Value, old.Set
	} else {
		ps.order = append(ps.order, name)
	}
	ps.props[name] = p
}

// Set assigns an explicit value.
func (ps *Properties) Set(name, value string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	p, ok := ps.props[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	p.Value, p.Set = value, true
	return nil
}

// SetAll assigns several values, stopping at the first unknown name.
func (ps *Properties) SetAll(values map[string]string) error {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := ps.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether name is declared.
func (ps *Properties) Has(name string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	_, ok := ps.props[name]
	return ok
}

// Get returns the effective value of name.
func (ps *Properties) Get(name string) (string, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	p, ok := ps.props[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return p.Effective(), nil
}

// String returns the effective value of name, or "" when undeclared.
func (ps *Properties) String(name string) string {
	v, _ := ps.Get(name)
	return v
}

// Int parses the effective value of name.
func (ps *Properties) Int(name string) (int, error) {
	v, err := ps.Get(name)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", name, err)
	}
	return n, nil
}

// Float parses the effective value of name.
func (ps *Properties) Float(name string) (float64, error) {
	v, err := ps.Get(name)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", name, err)
	}
	return f, nil
}

// Bool parses the effective value of name.
func (ps *Properties) Bool(name string) (bool, error) {
	v, err := ps.Get(name)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("property %s: %w", name, err)
	}
	return b, nil
}

// Duration parses the effective value of name ("250ms", "2s").
func (ps *Properties) Duration(name string) (time.Duration, error) {
	v, err := ps.Get(name)
	if err != nil {
		return 0, err
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", name, err)
	}
	return d, nil
}

// Names returns declared names in declaration order.
func (ps *Properties) Names() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]string, len(ps.order))
	copy(out, ps.order)
	return out
}

// List returns copies of every declaration in declaration order.
func (ps *Properties) List() []Property {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]Property, 0, len(ps.order))
	for _, name := range ps.order {
		out = append(out, *ps.props[name])
	}
	return out
}

// Values returns the effective value of every declared property.
func (ps *Properties) Values() map[string]string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]string, len(ps.props))
	for name, p := range ps.props {
		out[name] = p.Effective()
	}
	return out
}

// Validate fails with ErrMissingProperty for the first mandatory property
// that has neither a value nor a default.
func (ps *Properties) Validate() error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, name := range ps.order {
		p := ps.props[name]
		if p.Mandatory && p.Effective() == "" {
			return fmt.Errorf("%w: %s", ErrMissingProperty, name)
		}
	}
	return nil
}

// CopyFrom replaces ps with a deep copy of src, declarations and values.
func (ps *Properties) CopyFrom(src *Properties) {
	list := src.List()

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.order = ps.order[:0]
	ps.props = make(map[string]*Property, len(list))
	for i := range list {
		p := list[i]
		ps.order = append(ps.order, p.Name)
		ps.props[p.Name] = &p
	}
}

// CopyValuesFrom copies explicitly set values from src for every name that
// ps also declares. Names only src declares are ignored.
func (ps *Properties) CopyValuesFrom(src *Properties) {
	list := src.List()

	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, sp := range list {
		if !sp.Set {
			continue
		}
		if p, ok := ps.props[sp.Name]; ok {
			p.Value, p.Set = sp.Value, true
		}
	}
}
