package tiered

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

// State is the lifecycle position of an Instance.
type State uint8

const (
	StateNew State = iota
	StateSaved
	StateDirty
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateSaved:
		return "saved"
	case StateDirty:
		return "dirty"
	case StateDestroyed:
		return "destroyed"
	}
	return "state(?)"
}

// Instance is one row of a model. It is not safe for concurrent use; give
// every logical operation its own handle.
type Instance struct {
	db    *DB
	model *Model
	id    *idCell
	// supplied is set when the id came from the caller rather than the generator.
	supplied bool

	state   value.Values
	loaded  map[string]struct{}
	changed map[string]struct{}
	pending map[string]float64

	saved     bool
	destroyed bool
}

// FetchOptions select what Fetch reads.
type FetchOptions struct {
	// Names to read; empty means every attribute.
	Names []string
	// Reload re-reads names that are already loaded.
	Reload bool
	Mode   Mode
}

func newInstance(db *DB, m *Model) *Instance {
	return &Instance{
		db:      db,
		model:   m,
		state:   make(value.Values),
		loaded:  make(map[string]struct{}),
		changed: make(map[string]struct{}),
		pending: make(map[string]float64),
	}
}

func (in *Instance) Model() *Model { return in.model }

// ID returns the id once the instance is saved or was loaded by id.
func (in *Instance) ID() (string, bool) {
	if !in.saved && !in.supplied {
		return "", false
	}
	return in.id.peek()
}

// WaitID blocks until the id is generated, even for an unsaved instance.
func (in *Instance) WaitID(ctx context.Context) (string, error) {
	return in.id.wait(ctx)
}

func (in *Instance) State() State {
	switch {
	case in.destroyed:
		return StateDestroyed
	case !in.saved:
		return StateNew
	case len(in.changed) > 0:
		return StateDirty
	}
	return StateSaved
}

// Changed returns the names modified since the last save, sorted.
func (in *Instance) Changed() []string {
	out := make(value.Values, len(in.changed))
	for n := range in.changed {
		out[n] = nil
	}
	return out.Names()
}

// Get returns one attribute after the synchronous output chain in raw mode.
func (in *Instance) Get(name string) any {
	return in.Values(Raw, name)[name]
}

// Values returns the named attributes (all known ones when names is empty)
// after the synchronous output chain.
func (in *Instance) Values(mode Mode, names ...string) value.Values {
	data, tc := in.outputInput(mode, names)
	return in.model.pipe.runSyncOutput(tc, data)
}

// Output is Values plus asynchronous output hooks.
func (in *Instance) Output(ctx context.Context, mode Mode, names ...string) (value.Values, error) {
	data, tc := in.outputInput(mode, names)
	return in.model.pipe.runOutput(ctx, tc, data)
}

func (in *Instance) outputInput(mode Mode, names []string) (value.Values, *TransformContext) {
	id, hasID := in.ID()
	key := in.model.key.Name
	var data value.Values
	if len(names) == 0 {
		data = in.state.Clone()
		if data == nil {
			data = value.Values{}
		}
		if hasID {
			data[key] = id
		}
	} else {
		data = make(value.Values, len(names))
		for _, n := range names {
			if n == key {
				if hasID {
					data[n] = id
				}
				continue
			}
			if v, ok := in.state[n]; ok {
				data[n] = v
			}
		}
	}
	return data, &TransformContext{Model: in.model, ID: id, Mode: mode, Insert: !in.saved}
}

// Set runs data through the input chain and stages it for the next save.
func (in *Instance) Set(data value.Values, mode Mode) error {
	if in.destroyed {
		return ErrDestroyed
	}
	in.merge(mode, data)
	return nil
}

func (in *Instance) merge(mode Mode, data value.Values) {
	for k, v := range in.stage(mode, data) {
		in.state[k] = v
		in.loaded[k] = struct{}{}
		in.changed[k] = struct{}{}
	}
}

func (in *Instance) stage(mode Mode, data value.Values) value.Values {
	if len(data) == 0 {
		return nil
	}
	id, _ := in.id.peek()
	tc := &TransformContext{Model: in.model, ID: id, Mode: mode, Insert: !in.saved}
	return in.model.pipe.runInput(tc, data)
}

// Incr adds by to a counter. Deltas accumulate until the next save, which
// sends their sum as one relative increment.
func (in *Instance) Incr(name string, by float64) error {
	if in.destroyed {
		return ErrDestroyed
	}
	a, ok := in.model.attrs[name]
	if !ok || !a.Counter {
		return fmt.Errorf("%w: %s.%s", ErrNotACounter, in.model.name, name)
	}
	if a.Type == value.Integer && by != math.Trunc(by) {
		return ValidationError{name: fmt.Sprintf("fractional increment %v on integer counter", by)}
	}
	switch cur := in.state[name].(type) {
	case int64:
		in.state[name] = cur + int64(by)
	case float64:
		in.state[name] = cur + by
	default:
		if a.Type == value.Integer {
			in.state[name] = int64(by)
		} else {
			in.state[name] = by
		}
	}
	in.pending[name] += by
	in.changed[name] = struct{}{}
	return nil
}

func (in *Instance) Decr(name string, by float64) error { return in.Incr(name, -by) }

// Fetch reads attributes of a saved instance and merges them into its
// state without marking them changed. found is false when no tier holds the
// row.
func (in *Instance) Fetch(ctx context.Context, opts FetchOptions) (value.Values, bool, error) {
	if in.destroyed {
		return nil, false, ErrDestroyed
	}
	if !in.saved {
		return nil, false, ErrNotSaved
	}
	m := in.model
	names := opts.Names
	if len(names) == 0 {
		names = m.order
	}

	var want, stored []string
	for _, n := range names {
		a, ok := m.attrs[n]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s.%s", ErrUnknownAttribute, m.name, n)
		}
		if a.PrimaryKey {
			continue
		}
		if _, done := in.loaded[n]; done && !opts.Reload {
			continue
		}
		want = append(want, n)
		if !a.Virtual {
			stored = append(stored, n)
		}
	}

	id, err := in.id.wait(ctx)
	if err != nil {
		return nil, false, err
	}
	if len(want) > 0 {
		// with only virtual names wanted this still checks the row exists
		row, found, err := in.db.fetchRow(ctx, m, id, stored, true)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		if row == nil {
			row = value.Values{}
		}
		tc := &TransformContext{Model: m, ID: id, Mode: Raw, Names: want}
		row, err = m.pipe.runFetch(ctx, tc, row)
		if err != nil {
			return nil, false, err
		}
		for _, n := range want {
			in.absorb(n, row[n])
		}
	}

	out, err := in.Output(ctx, opts.Mode, names...)
	return out, err == nil, err
}

// absorb stores a freshly read value. Pending counter deltas stay on top.
func (in *Instance) absorb(name string, v any) {
	in.loaded[name] = struct{}{}
	d, ok := in.pending[name]
	if !ok {
		in.state[name] = v
		delete(in.changed, name)
		return
	}
	switch x := v.(type) {
	case int64:
		in.state[name] = x + int64(d)
	case float64:
		in.state[name] = x + d
	}
}

// Save stages data like Set, then persists every changed attribute. With
// nothing changed it returns without touching a backend. On any error the
// instance is left as it was before the call.
func (in *Instance) Save(ctx context.Context, data value.Values, mode Mode) error {
	if in.destroyed {
		return ErrDestroyed
	}
	staged := in.stage(mode, data)
	names := make(map[string]struct{}, len(in.changed)+len(staged))
	for n := range in.changed {
		names[n] = struct{}{}
	}
	for n := range staged {
		names[n] = struct{}{}
	}
	if len(names) == 0 {
		return nil
	}

	if in.id.failed() {
		in.id = pendingID(context.WithoutCancel(ctx), in.db.generate(in.model))
	}
	id, err := in.id.wait(ctx)
	if err != nil {
		return err
	}

	m := in.model
	payload := make(value.Values, len(names))
	for n := range names {
		payload[n] = in.state[n]
	}
	for n, v := range staged {
		payload[n] = v
	}
	var incr map[string]float64
	if len(in.pending) > 0 {
		incr = make(map[string]float64, len(in.pending))
		for n, d := range in.pending {
			incr[n] = d
		}
	}
	insert := !in.saved
	tc := &TransformContext{Model: m, ID: id, Mode: mode, Insert: insert, Increments: incr}
	out, err := m.pipe.runSave(ctx, tc, payload)
	if err != nil {
		return err
	}
	if !insert && len(out) == 0 && len(tc.Increments) == 0 {
		in.commit(staged, nil)
		return nil
	}

	reserved, err := in.db.updateIndexes(ctx, m, id, insert, out)
	if err != nil {
		return err
	}
	if err := in.db.write(ctx, m, id, out, tc.Increments, insert); err != nil {
		if len(reserved) == 0 {
			return err
		}
		perr := &PartialSaveError{Model: m.name, ID: id, Reserved: reserved, Err: err}
		in.db.log.Error("save failed after index reservation", rowFields(m, id, "reserved", reserved, "err", err))
		in.db.hooks.PartialSave(m.name, id, perr)
		return perr
	}
	in.commit(staged, tc.Increments)
	for k, v := range out {
		in.state[k] = v
	}
	in.saved = true
	return nil
}

func (in *Instance) commit(staged value.Values, incr map[string]float64) {
	for k, v := range staged {
		in.state[k] = v
		in.loaded[k] = struct{}{}
	}
	// other writers may have moved a counter; read it again on next fetch
	for n := range incr {
		delete(in.loaded, n)
	}
	in.changed = make(map[string]struct{})
	in.pending = make(map[string]float64)
}

// Destroy deletes the row from every tier and releases its index pointers.
// When no tier held the row it still releases the pointers it knows of,
// marks the instance destroyed and returns ErrNotFound.
func (in *Instance) Destroy(ctx context.Context) error {
	if in.destroyed {
		return ErrDestroyed
	}
	if !in.saved {
		return ErrNotSaved
	}
	id, err := in.id.wait(ctx)
	if err != nil {
		return err
	}
	m := in.model
	db := in.db

	indexed := make(value.Values, len(m.indexed))
	var unknown []string
	for _, n := range m.indexed {
		_, loaded := in.loaded[n]
		_, dirty := in.changed[n]
		if loaded && !dirty {
			indexed[n] = in.state[n]
		} else {
			unknown = append(unknown, n)
		}
	}
	row, found, err := db.fetchRow(ctx, m, id, unknown, false)
	if err != nil {
		return err
	}
	for k, v := range row {
		indexed[k] = v
	}

	// a partial fast row can exist without a durable one, so destroy anyway
	var g errgroup.Group
	owners := db.tierOf(m)
	for _, t := range tiers {
		b, ok := db.backends[t]
		if !ok || !owners.Has(t) {
			continue
		}
		t := t
		g.Go(func() error {
			if err := b.Destroy(ctx, backend.DestroyRequest{Model: m.name, ID: id}); err != nil {
				return &BackendError{Tier: t, Op: "destroy " + m.name, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, n := range m.indexed {
		k, err := indexKey(m.attrs[n], indexed[n])
		if err != nil || k == "" {
			continue
		}
		db.release(ctx, m, id, pointer{attr: n, key: k})
	}
	in.destroyed = true
	if !found {
		return fmt.Errorf("%w: %s %s", ErrNotFound, m.name, id)
	}
	return nil
}
