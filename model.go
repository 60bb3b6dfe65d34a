package tiered

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

// ModelDef is the declaration of a model before registration.
type ModelDef struct {
	Name       string
	Attributes []Attribute
	// Mixins wrap the attribute transforms. The first mixin is the outermost
	// layer: it sees incoming data first and outgoing data last.
	Mixins []Mixin
}

// Model is a sealed, read-only model definition shared by all its instances.
type Model struct {
	name  string
	key   *Attribute
	attrs map[string]*Attribute
	order []string

	required []string
	hidden   []string
	indexed  []string
	cached   []string
	counters []string
	virtual  []string

	pipe *pipeline
}

func (m *Model) Name() string { return m.name }

// Key returns the primary key attribute.
func (m *Model) Key() *Attribute { return m.key }

func (m *Model) Attribute(name string) (*Attribute, bool) {
	a, ok := m.attrs[name]
	return a, ok
}

// Names returns every attribute name in declaration order.
func (m *Model) Names() []string { return append([]string(nil), m.order...) }

func (m *Model) Required() []string { return append([]string(nil), m.required...) }
func (m *Model) Hidden() []string   { return append([]string(nil), m.hidden...) }
func (m *Model) Indexed() []string  { return append([]string(nil), m.indexed...) }
func (m *Model) Cached() []string   { return append([]string(nil), m.cached...) }
func (m *Model) Counters() []string { return append([]string(nil), m.counters...) }
func (m *Model) Virtual() []string  { return append([]string(nil), m.virtual...) }

// AttributesForTiers partitions names by the tiers that hold them. An
// attribute in both tiers appears in both lists. The primary key, virtual
// and unknown names are skipped.
func (m *Model) AttributesForTiers(names []string) map[Tier][]string {
	out := make(map[Tier][]string, 2)
	for _, n := range names {
		a, ok := m.attrs[n]
		if !ok || a.Virtual || a.PrimaryKey {
			continue
		}
		for _, t := range tiers {
			if a.Tiers.Has(t) {
				out[t] = append(out[t], n)
			}
		}
	}
	return out
}

// storedNames returns all non-virtual, non-key attributes.
func (m *Model) storedNames() []string {
	out := make([]string, 0, len(m.order))
	for _, n := range m.order {
		a := m.attrs[n]
		if !a.Virtual && !a.PrimaryKey {
			out = append(out, n)
		}
	}
	return out
}

// mirrored returns the stored attributes both tiers hold.
func (m *Model) mirrored() []string {
	return m.AttributesForTiers(m.cached)[Durable]
}

func (m *Model) types(names []string) map[string]value.Type {
	out := make(map[string]value.Type, len(names))
	for _, n := range names {
		if a, ok := m.attrs[n]; ok {
			out[n] = a.Type
		}
	}
	return out
}

// schema returns what tier t needs to know about the model.
func (m *Model) schema(t Tier) backend.Schema {
	s := backend.Schema{
		Model:      m.name,
		Key:        m.key.Name,
		KeyType:    m.key.Type,
		Attributes: make(map[string]value.Type),
	}
	for _, n := range m.AttributesForTiers(m.order)[t] {
		a := m.attrs[n]
		s.Attributes[n] = a.Type
		if a.Counter {
			s.Counters = append(s.Counters, n)
		}
	}
	return s
}

// Registry collects model definitions and seals them as a batch. Models may
// reference each other by name, so no model is visible before Seal.
type Registry struct {
	mu      sync.RWMutex
	pending []ModelDef
	models  map[string]*Model
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register queues definitions for the next Seal.
func (r *Registry) Register(defs ...ModelDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrRegistrySealed
	}
	for _, d := range defs {
		for _, p := range r.pending {
			if p.Name == d.Name {
				return &ConfigError{Model: d.Name, Reason: "registered twice"}
			}
		}
		r.pending = append(r.pending, d)
	}
	return nil
}

// Seal validates every pending definition and freezes the registry.
// All declaration problems are reported together.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil
	}
	names := make(map[string]struct{}, len(r.pending))
	for _, d := range r.pending {
		names[d.Name] = struct{}{}
	}
	var errs []error
	models := make(map[string]*Model, len(r.pending))
	for _, d := range r.pending {
		m, err := buildModel(d, names)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		models[m.name] = m
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	r.models = models
	r.pending = nil
	r.sealed = true
	return nil
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Model looks up a sealed model.
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.sealed {
		return nil, ErrRegistryOpen
	}
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Models returns sealed models sorted by name.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func buildModel(d ModelDef, known map[string]struct{}) (*Model, error) {
	if d.Name == "" {
		return nil, &ConfigError{Reason: "model without a name"}
	}
	m := &Model{
		name:  d.Name,
		attrs: make(map[string]*Attribute, len(d.Attributes)),
	}
	var errs []error
	for i := range d.Attributes {
		a := d.Attributes[i]
		if err := a.validate(d.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := m.attrs[a.Name]; dup {
			errs = append(errs, &ConfigError{Model: d.Name, Attribute: a.Name, Reason: "declared twice"})
			continue
		}
		if a.Relation != nil {
			if a.Relation.Kind == Tree && a.Relation.Target == "" {
				a.Relation.Target = d.Name
			}
			if _, ok := known[a.Relation.Target]; !ok {
				errs = append(errs, &ConfigError{Model: d.Name, Attribute: a.Name,
					Reason: fmt.Sprintf("relation to unknown model %q", a.Relation.Target)})
				continue
			}
			if a.Relation.Kind == Tree && a.Relation.Target != d.Name {
				errs = append(errs, &ConfigError{Model: d.Name, Attribute: a.Name, Reason: "tree relation must target its own model"})
				continue
			}
		}
		if a.PrimaryKey {
			if m.key != nil {
				errs = append(errs, &ConfigError{Model: d.Name, Attribute: a.Name, Reason: "more than one primary key"})
				continue
			}
			// the key never changes once assigned
			a.Guarded = true
			a.Required = false
		}
		ap := &a
		m.attrs[a.Name] = ap
		m.order = append(m.order, a.Name)
		if a.PrimaryKey {
			m.key = ap
			continue
		}
		if a.Required {
			m.required = append(m.required, a.Name)
		}
		if a.Hidden {
			m.hidden = append(m.hidden, a.Name)
		}
		if a.Index {
			m.indexed = append(m.indexed, a.Name)
		}
		if a.Tiers.Has(Fast) {
			m.cached = append(m.cached, a.Name)
		}
		if a.Counter {
			m.counters = append(m.counters, a.Name)
		}
		if a.Virtual {
			m.virtual = append(m.virtual, a.Name)
		}
	}
	if m.key == nil && len(errs) == 0 {
		errs = append(errs, &ConfigError{Model: d.Name, Reason: "exactly one primary key is required"})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	m.pipe = newPipeline(m, d.Mixins)
	return m, nil
}
