package tiered

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

// fetchRow reads stored attributes of one row.
//
// When every name lives in the fast tier the read goes through fetchCached.
// Otherwise the durable tier serves everything it owns and the fast tier is
// only asked for names the durable tier never sees. repop allows a cache
// fallback to write durable values back; reads taken right before a write
// pass false so the write cannot be overtaken by older values.
func (db *DB) fetchRow(ctx context.Context, m *Model, id string, names []string, repop bool) (value.Values, bool, error) {
	routes := m.AttributesForTiers(names)
	uncached := false
	for _, n := range routes[Durable] {
		if !m.attrs[n].Tiers.Has(Fast) {
			uncached = true
			break
		}
	}
	if !uncached {
		return db.fetchCached(ctx, m, id, routes[Fast], repop)
	}

	var exclusive []string
	for _, n := range routes[Fast] {
		if m.attrs[n].fastOnly() {
			exclusive = append(exclusive, n)
		}
	}

	var (
		g             errgroup.Group
		durable, fast value.Values
		dFound        bool
		dErr, fErr    error
	)
	g.Go(func() error {
		durable, dFound, dErr = db.fetchTier(ctx, Durable, m, id, routes[Durable])
		return nil
	})
	if len(exclusive) > 0 {
		g.Go(func() error {
			fast, _, fErr = db.fetchTier(ctx, Fast, m, id, exclusive)
			return nil
		})
	}
	_ = g.Wait()
	if dErr != nil {
		return nil, false, dErr
	}
	if fErr != nil {
		return nil, false, fErr
	}
	if !dFound {
		return nil, false, nil
	}
	delete(fast, backend.Complete)
	for k, v := range fast {
		durable[k] = v
	}
	return durable, true, nil
}

// fetchCached serves names from the fast tier when it holds a complete row.
// A miss, an error or a partial row (one a plain update created after an
// eviction) falls back to the durable tier; fast-only values of a partial
// row are kept. With repop set, every attribute both tiers hold is read and
// filled into the fast row in the background, which marks it complete.
func (db *DB) fetchCached(ctx context.Context, m *Model, id string, names []string, repop bool) (value.Values, bool, error) {
	row, found, err := db.fetchTier(ctx, Fast, m, id, names)
	complete := found && row[backend.Complete] == true
	delete(row, backend.Complete)
	if err == nil && complete {
		return row, true, nil
	}

	_, hasDurable := db.backends[Durable]
	if !hasDurable || db.tierOf(m)&Durable == 0 {
		if err != nil {
			return nil, false, err
		}
		return row, found, nil
	}

	reason := "miss"
	if err != nil {
		reason = "error"
	}
	db.hooks.CacheFallback(m.name, reason)
	db.log.Debug("fast tier fallback", rowFields(m, id, "reason", reason, "err", err, "partial", found))

	read := m.AttributesForTiers(names)[Durable]
	mirrored := m.mirrored()
	if repop {
		read = union(read, mirrored)
	}
	durable, dFound, derr := db.fetchTier(ctx, Durable, m, id, read)
	if derr != nil {
		return nil, false, derr
	}
	if !dFound {
		return nil, false, nil
	}
	if repop {
		db.repopulate(ctx, m, id, durable.Pick(mirrored))
	}

	out := durable.Pick(names)
	if err == nil && found {
		for _, n := range names {
			if v, ok := row[n]; ok && m.attrs[n].fastOnly() {
				out[n] = v
			}
		}
	}
	return out, true, nil
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, n := range list {
			if _, ok := seen[n]; !ok {
				seen[n] = struct{}{}
				out = append(out, n)
			}
		}
	}
	return out
}

func (db *DB) fetchTier(ctx context.Context, t Tier, m *Model, id string, names []string) (value.Values, bool, error) {
	b, ok := db.backends[t]
	if !ok {
		return nil, false, &BackendError{Tier: t, Op: "fetch " + m.name, Err: ErrNoBackend}
	}
	row, found, err := b.Fetch(ctx, backend.FetchRequest{
		Model:      m.name,
		ID:         id,
		Attributes: names,
		Types:      m.types(names),
	})
	if err != nil {
		return nil, false, &BackendError{Tier: t, Op: "fetch " + m.name, Err: err}
	}
	if found && row == nil {
		row = value.Values{}
	}
	return row, found, nil
}

// repopulate fills durable values into the fast tier. The Fill save skips
// attributes the fast row already holds, so values written after the
// durable read survive. It never blocks the caller and its failures are only
// logged and reported to hooks.
func (db *DB) repopulate(ctx context.Context, m *Model, id string, data value.Values) {
	fb, ok := db.backends[Fast]
	if !ok {
		return
	}
	names := data.Names()
	req := backend.SaveRequest{
		Model: m.name,
		ID:    id,
		Data:  data,
		Types: m.types(names),
		Fill:  true,
	}

	db.bg.Add(1)
	go func() {
		defer db.bg.Done()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), db.repopTimeout)
		defer cancel()
		if err := fb.Save(cctx, req); err != nil {
			db.log.Warn("cache repopulation failed", rowFields(m, id, "err", err))
			db.hooks.RepopulateFailed(m.name, id, err)
		}
	}()
}
