package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/idgen"
	"github.com/unkn0wn-root/tiered/value"
)

// WritePolicy decides how fast tier write failures surface.
type WritePolicy uint8

const (
	// Strict surfaces every tier failure to the caller.
	Strict WritePolicy = iota
	// BestEffort logs and reports (Hooks.SecondaryWriteFailed) a failed fast
	// tier write when the durable tier accepted the same save and every
	// attribute in the fast write is also durable. Fast-only attributes
	// (counters, cache-only data) always fail strictly.
	BestEffort
)

// Options configure a DB. Registry and at least one backend are required.
type Options struct {
	Registry *Registry
	Fast     backend.Backend
	Durable  backend.Backend

	IDGen             idgen.Generator // nil => idgen.NewLocal()
	Logger            Logger          // nil => NopLogger
	Hooks             Hooks           // nil => NopHooks
	FastWrites        WritePolicy     // default Strict
	RepopulateTimeout time.Duration   // 0 => 5s
}

// DB coordinates instances of the registered models across both tiers.
type DB struct {
	reg          *Registry
	backends     map[Tier]backend.Backend
	ids          idgen.Generator
	log          Logger
	hooks        Hooks
	fastWrites   WritePolicy
	repopTimeout time.Duration
	// indexTier holds index pointers: the fast tier unless it evicts.
	indexTier Tier

	bg        sync.WaitGroup
	closeOnce sync.Once
}

// Open seals the registry, checks every model has the backends it needs and
// prepares backend schemas.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("tiered: registry is required")
	}
	if opts.Fast == nil && opts.Durable == nil {
		return nil, fmt.Errorf("tiered: at least one backend is required")
	}
	if err := opts.Registry.Seal(); err != nil {
		return nil, err
	}

	opts = opts.withDefaults()
	db := &DB{
		reg:          opts.Registry,
		backends:     make(map[Tier]backend.Backend, 2),
		ids:          opts.IDGen,
		log:          opts.Logger,
		hooks:        opts.Hooks,
		fastWrites:   opts.FastWrites,
		repopTimeout: opts.RepopulateTimeout,
	}
	if opts.Fast != nil {
		db.backends[Fast] = opts.Fast
	}
	db.indexTier = Fast
	if ev, ok := opts.Fast.(backend.Evictor); ok && ev.Evicts() {
		db.indexTier = Durable
	}
	if opts.Durable != nil {
		db.backends[Durable] = opts.Durable
	}

	for _, m := range db.reg.Models() {
		for _, t := range tiers {
			s := m.schema(t)
			// the key always lives in the fast tier, so that tier is never empty
			if len(s.Attributes) == 0 && t != Fast {
				continue
			}
			b, ok := db.backends[t]
			if !ok {
				if len(s.Attributes) == 0 {
					continue
				}
				return nil, fmt.Errorf("%w: model %q uses the %s tier", ErrNoBackend, m.name, t)
			}
			if se, ok := b.(backend.SchemaEnsurer); ok {
				if err := se.EnsureSchema(ctx, s); err != nil {
					return nil, &BackendError{Tier: t, Op: "schema " + m.name, Err: err}
				}
			}
		}
		if len(m.indexed) == 0 {
			continue
		}
		if _, ok := db.backends[db.indexTier]; !ok {
			return nil, fmt.Errorf("%w: model %q keeps index pointers in the %s tier", ErrNoBackend, m.name, db.indexTier)
		}
	}
	return db, nil
}

func (db *DB) Registry() *Registry { return db.reg }

// New creates an unsaved instance. Unless initial carries the primary key,
// the id is generated in the background and Save waits for it.
func (db *DB) New(ctx context.Context, model string, initial value.Values) (*Instance, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return nil, err
	}
	in := newInstance(db, m)
	if v, ok := initial[m.key.Name]; ok && v != nil {
		id, err := value.Key(m.key.Type, v)
		if err != nil {
			return nil, ValidationError{m.key.Name: err.Error()}
		}
		in.id = assignedID(id)
		in.supplied = true
	} else {
		in.id = pendingID(context.WithoutCancel(ctx), db.generate(m))
	}

	for _, n := range m.order {
		a := m.attrs[n]
		if a.PrimaryKey {
			continue
		}
		if v, ok := a.defaultValue(); ok {
			if a.Relation == nil {
				if c, err := value.Coerce(a.Type, v); err == nil {
					v = c
				}
			}
			in.state[n] = v
			in.loaded[n] = struct{}{}
			in.changed[n] = struct{}{}
		}
	}
	in.merge(Raw, initial)
	return in, nil
}

func (db *DB) generate(m *Model) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		id, err := db.ids.Next(ctx, m.name)
		if err != nil {
			return "", fmt.Errorf("tiered: generate id for %s: %w", m.name, err)
		}
		return value.Key(m.key.Type, id)
	}
}

// Load returns a handle on a stored instance. Nothing is read until Fetch.
func (db *DB) Load(model, id string) (*Instance, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return nil, err
	}
	key, err := value.Key(m.key.Type, id)
	if err != nil {
		return nil, fmt.Errorf("tiered: %s id %q: %w", model, id, err)
	}
	in := newInstance(db, m)
	in.id = assignedID(key)
	in.saved = true
	return in, nil
}

// Find resolves an indexed value to the instance that owns it.
func (db *DB) Find(ctx context.Context, model, attribute string, v any) (*Instance, bool, error) {
	m, err := db.reg.Model(model)
	if err != nil {
		return nil, false, err
	}
	a, ok := m.attrs[attribute]
	if !ok || !a.Index {
		return nil, false, fmt.Errorf("%w: %s.%s is not indexed", ErrUnknownAttribute, model, attribute)
	}
	key, err := value.Key(a.Type, v)
	if err != nil {
		return nil, false, err
	}
	id, ok, err := db.indexes().IndexGet(ctx, backend.IndexKey{Model: m.name, Attribute: attribute, Value: key})
	if err != nil {
		return nil, false, &BackendError{Tier: db.indexTier, Op: "index get", Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	in, err := db.Load(model, id)
	return in, err == nil, err
}

// Reset clears every tier. Meant for tests and development.
func (db *DB) Reset(ctx context.Context) error {
	db.Wait()
	var errs []error
	for _, t := range tiers {
		if b, ok := db.backends[t]; ok {
			if err := b.Reset(ctx); err != nil {
				errs = append(errs, &BackendError{Tier: t, Op: "reset", Err: err})
			}
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until background cache repopulation has finished.
func (db *DB) Wait() { db.bg.Wait() }

// Close waits for background work and closes both backends.
func (db *DB) Close(ctx context.Context) error {
	var err error
	db.closeOnce.Do(func() {
		db.bg.Wait()
		var errs []error
		for _, t := range tiers {
			if b, ok := db.backends[t]; ok {
				if cerr := b.Close(ctx); cerr != nil {
					errs = append(errs, cerr)
				}
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
