package tiered

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

// tierOf returns the tiers holding at least one stored attribute of m.
// The fast tier always holds the row key.
func (db *DB) tierOf(m *Model) Tier {
	t := Fast
	if len(m.AttributesForTiers(m.storedNames())[Durable]) > 0 {
		t |= Durable
	}
	return t
}

// write sends data and increments to every tier owning at least one of the
// affected attributes. Tier writes run concurrently; a tier owning nothing
// is skipped.
func (db *DB) write(ctx context.Context, m *Model, id string, data value.Values, incr map[string]float64, insert bool) error {
	names := data.Names()
	for n := range incr {
		if _, ok := data[n]; !ok {
			names = append(names, n)
		}
	}
	routes := m.AttributesForTiers(names)

	var g errgroup.Group
	errs := make(map[Tier]error, len(routes))
	results := make([]error, len(tiers))
	for i, t := range tiers {
		owned := routes[t]
		if len(owned) == 0 {
			continue
		}
		b, ok := db.backends[t]
		if !ok {
			results[i] = ErrNoBackend
			continue
		}
		req := backend.SaveRequest{
			Model:  m.name,
			ID:     id,
			Data:   data.Pick(owned),
			Types:  m.types(owned),
			Insert: insert,
		}
		for _, n := range owned {
			if d, ok := incr[n]; ok {
				if req.Increments == nil {
					req.Increments = make(map[string]float64)
				}
				req.Increments[n] = d
			}
		}
		i := i
		g.Go(func() error {
			results[i] = b.Save(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range tiers {
		if results[i] != nil {
			errs[t] = &BackendError{Tier: t, Op: "save " + m.name, Err: results[i]}
		}
	}
	if err, ok := errs[Fast]; ok && db.tolerate(routes, errs) {
		db.log.Warn("fast tier write failed; durable tier holds the data", rowFields(m, id, "err", err))
		db.hooks.SecondaryWriteFailed(m.name, err)
		delete(errs, Fast)
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		for _, err := range errs {
			return err
		}
	}
	return errors.Join(errs[Fast], errs[Durable])
}

// tolerate reports whether a failed fast write may be dropped under the
// BestEffort policy.
func (db *DB) tolerate(routes map[Tier][]string, errs map[Tier]error) bool {
	if db.fastWrites != BestEffort || len(routes[Durable]) == 0 {
		return false
	}
	if _, failed := errs[Durable]; failed {
		return false
	}
	durable := make(map[string]struct{}, len(routes[Durable]))
	for _, n := range routes[Durable] {
		durable[n] = struct{}{}
	}
	for _, n := range routes[Fast] {
		if _, ok := durable[n]; !ok {
			return false
		}
	}
	return true
}
