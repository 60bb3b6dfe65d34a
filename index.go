package tiered

import (
	"context"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

type pointer struct {
	attr string
	key  string
}

// updateIndexes moves the index pointers of id to the indexed values in
// data. Replaced values are released before new ones are reserved. On a
// conflict every change made here is rolled back and the conflict returned.
// The attributes whose pointers were newly created are returned.
func (db *DB) updateIndexes(ctx context.Context, m *Model, id string, insert bool, data value.Values) ([]string, error) {
	var targets []string
	for _, n := range m.indexed {
		if _, ok := data[n]; ok {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	prior := value.Values{}
	if !insert {
		var replace []string
		for _, n := range targets {
			if m.attrs[n].ReplaceIndex {
				replace = append(replace, n)
			}
		}
		if len(replace) > 0 {
			row, _, err := db.fetchRow(ctx, m, id, replace, false)
			if err != nil {
				return nil, err
			}
			prior = row
		}
	}

	var released, created []pointer
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			db.release(context.WithoutCancel(ctx), m, id, created[i])
		}
		for _, p := range released {
			_, _ = db.indexes().IndexSet(context.WithoutCancel(ctx), m.indexKey(p), id)
		}
	}

	for _, n := range targets {
		a := m.attrs[n]
		next, err := indexKey(a, data[n])
		if err != nil {
			rollback()
			return nil, ValidationError{n: err.Error()}
		}
		if old, ok := prior[n]; ok && old != nil {
			prev, err := indexKey(a, old)
			if err == nil && prev != next {
				p := pointer{attr: n, key: prev}
				if db.release(ctx, m, id, p) {
					released = append(released, p)
				}
			}
		}
		if next == "" {
			continue
		}
		p := pointer{attr: n, key: next}
		fresh, err := db.reserve(ctx, m, id, p)
		if err != nil {
			rollback()
			return nil, err
		}
		if fresh {
			created = append(created, p)
		}
	}

	out := make([]string, len(created))
	for i, p := range created {
		out[i] = p.attr
	}
	return out, nil
}

// reserve claims p for id. fresh is false when id already owned it.
func (db *DB) reserve(ctx context.Context, m *Model, id string, p pointer) (fresh bool, err error) {
	idx := db.indexes()
	key := m.indexKey(p)
	for attempt := 0; attempt < 2; attempt++ {
		existed, err := idx.IndexSet(ctx, key, id)
		if err != nil {
			return false, &BackendError{Tier: db.indexTier, Op: "index set", Err: err}
		}
		if !existed {
			return true, nil
		}
		owner, ok, err := idx.IndexGet(ctx, key)
		if err != nil {
			return false, &BackendError{Tier: db.indexTier, Op: "index get", Err: err}
		}
		if !ok {
			// released between set and get
			continue
		}
		if owner == id {
			return false, nil
		}
		db.hooks.IndexConflict(m.name, p.attr)
		return false, &IndexConflictError{Model: m.name, Attribute: p.attr, Value: p.key, Owner: owner}
	}
	return false, &IndexConflictError{Model: m.name, Attribute: p.attr, Value: p.key}
}

// release drops p if it still points at id. Failures are logged; a stale
// pointer only blocks its value until the owner releases it.
func (db *DB) release(ctx context.Context, m *Model, id string, p pointer) bool {
	idx := db.indexes()
	key := m.indexKey(p)
	owner, ok, err := idx.IndexGet(ctx, key)
	if err == nil && (!ok || owner != id) {
		return false
	}
	if err == nil {
		err = idx.IndexDel(ctx, key)
	}
	if err != nil {
		db.log.Warn("index release failed", rowFields(m, id, "attribute", p.attr, "err", err))
		return false
	}
	return true
}

// indexes returns the backend holding index pointers. A fast tier that
// evicts could lose a pointer and let a second row claim its value, so
// such a DB keeps pointers in the durable tier.
func (db *DB) indexes() backend.Backend { return db.backends[db.indexTier] }

func (m *Model) indexKey(p pointer) backend.IndexKey {
	return backend.IndexKey{Model: m.name, Attribute: p.attr, Value: p.key}
}

func indexKey(a *Attribute, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	return value.Key(a.Type, v)
}
