package tiered

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/tiered/value"
)

// TransformContext travels with data through one pipeline run.
type TransformContext struct {
	Model *Model
	ID    string
	Mode  Mode
	// Insert is set when saving a row for the first time.
	Insert bool
	// Names lists the attributes a fetch asked for, virtual ones included.
	Names []string
	// Increments carries pending counter deltas into the save chain and the
	// resulting relative writes out of it.
	Increments map[string]float64
}

// Mixin is a model-level transform layer. Nil funcs are skipped.
type Mixin struct {
	Name   string
	Input  func(tc *TransformContext, data value.Values) value.Values
	Output func(tc *TransformContext, data value.Values) value.Values
	Fetch  func(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error)
	Save   func(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error)
}

type (
	syncStage  func(tc *TransformContext, data value.Values) value.Values
	asyncStage func(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error)
)

// pipeline is the frozen stage list of one model.
//
// Incoming chains (input, fetch) run builtin, mixins in registration order,
// then attribute hooks. Outgoing chains (output, save) run the same layers
// in reverse so each layer unwraps what it wrapped.
type pipeline struct {
	input  []syncStage
	output []syncStage
	fetch  []asyncStage
	save   []asyncStage
	async  []string
}

func newPipeline(m *Model, mixins []Mixin) *pipeline {
	p := &pipeline{}

	p.input = append(p.input, m.builtinInput)
	for _, mx := range mixins {
		if mx.Input != nil {
			p.input = append(p.input, mx.Input)
		}
	}
	p.input = append(p.input, m.attrInput)

	p.fetch = append(p.fetch, m.builtinFetch)
	for _, mx := range mixins {
		if mx.Fetch != nil {
			p.fetch = append(p.fetch, mx.Fetch)
		}
	}
	p.fetch = append(p.fetch, m.attrFetch)

	p.output = append(p.output, m.attrOutput)
	for i := len(mixins) - 1; i >= 0; i-- {
		if mixins[i].Output != nil {
			p.output = append(p.output, mixins[i].Output)
		}
	}
	p.output = append(p.output, m.builtinOutput)

	p.save = append(p.save, m.attrSave)
	for i := len(mixins) - 1; i >= 0; i-- {
		if mixins[i].Save != nil {
			p.save = append(p.save, mixins[i].Save)
		}
	}
	p.save = append(p.save, m.builtinSave)

	for _, n := range m.order {
		if m.attrs[n].OutputAsync != nil {
			p.async = append(p.async, n)
		}
	}
	return p
}

func (p *pipeline) runInput(tc *TransformContext, data value.Values) value.Values {
	d := data.Clone()
	for _, s := range p.input {
		if d = s(tc, d); d == nil {
			d = value.Values{}
		}
	}
	return d
}

func (p *pipeline) runSyncOutput(tc *TransformContext, data value.Values) value.Values {
	d := data.Clone()
	for _, s := range p.output {
		if d = s(tc, d); d == nil {
			d = value.Values{}
		}
	}
	return d
}

// runOutput applies the sync chain, then evaluates async output hooks
// concurrently and merges their results over the sync result.
func (p *pipeline) runOutput(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error) {
	d := p.runSyncOutput(tc, data)
	if len(p.async) == 0 {
		return d, nil
	}

	var mu sync.Mutex
	resolved := make(value.Values, len(p.async))
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range p.async {
		v, ok := d[name]
		if !ok {
			continue
		}
		name := name
		hook := tc.Model.attrs[name].OutputAsync
		g.Go(func() error {
			out, err := hook(gctx, tc, v)
			if err != nil {
				return fmt.Errorf("output %s: %w", name, err)
			}
			mu.Lock()
			resolved[name] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for k, v := range resolved {
		d[k] = v
	}
	return d, nil
}

func (p *pipeline) runFetch(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error) {
	return runAsync(ctx, p.fetch, tc, data)
}

func (p *pipeline) runSave(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error) {
	return runAsync(ctx, p.save, tc, data)
}

func runAsync(ctx context.Context, stages []asyncStage, tc *TransformContext, data value.Values) (value.Values, error) {
	d := data.Clone()
	if d == nil {
		d = value.Values{}
	}
	for _, s := range stages {
		var err error
		if d, err = s(ctx, tc, d); err != nil {
			return nil, err
		}
		if d == nil {
			d = value.Values{}
		}
	}
	return d, nil
}

func (m *Model) builtinInput(tc *TransformContext, data value.Values) value.Values {
	out := make(value.Values, len(data))
	for k, v := range data {
		a, ok := m.attrs[k]
		if !ok || a.PrimaryKey {
			continue
		}
		if tc.Mode == User && (a.Guarded || a.Virtual) {
			continue
		}
		// unconvertible values are kept as-is and rejected by the save chain
		if a.Relation != nil {
			if nv, err := a.Relation.Kind.OnInput(v); err == nil {
				v = nv
			}
		} else if nv, err := value.Coerce(a.Type, v); err == nil {
			v = nv
		}
		out[k] = v
	}
	return out
}

func (m *Model) attrInput(tc *TransformContext, data value.Values) value.Values {
	for k, v := range data {
		if a := m.attrs[k]; a != nil && a.Input != nil {
			data[k] = a.Input(tc, v)
		}
	}
	return data
}

func (m *Model) attrOutput(tc *TransformContext, data value.Values) value.Values {
	for k, v := range data {
		if a := m.attrs[k]; a != nil && a.Output != nil {
			data[k] = a.Output(tc, v)
		}
	}
	return data
}

func (m *Model) builtinOutput(tc *TransformContext, data value.Values) value.Values {
	if tc.Mode != User {
		return data
	}
	for _, n := range m.hidden {
		delete(data, n)
	}
	return data
}

func (m *Model) builtinFetch(_ context.Context, _ *TransformContext, data value.Values) (value.Values, error) {
	for k, v := range data {
		a, ok := m.attrs[k]
		if !ok {
			delete(data, k)
			continue
		}
		if a.Relation != nil {
			continue
		}
		c, err := value.Coerce(a.Type, v)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", k, err)
		}
		data[k] = c
	}
	return data, nil
}

// attrFetch runs attribute fetch hooks and materializes requested virtual
// attributes that only exist through their hook.
func (m *Model) attrFetch(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error) {
	for k, v := range data {
		if a := m.attrs[k]; a != nil && a.Fetch != nil {
			nv, err := a.Fetch(ctx, tc, v)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", k, err)
			}
			data[k] = nv
		}
	}
	for _, n := range tc.Names {
		a, ok := m.attrs[n]
		if !ok || !a.Virtual || a.Fetch == nil {
			continue
		}
		if _, done := data[n]; done {
			continue
		}
		nv, err := a.Fetch(ctx, tc, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", n, err)
		}
		data[n] = nv
	}
	return data, nil
}

func (m *Model) attrSave(ctx context.Context, tc *TransformContext, data value.Values) (value.Values, error) {
	for k, v := range data {
		a := m.attrs[k]
		if a == nil || a.Save == nil {
			continue
		}
		nv, err := a.Save(ctx, tc, v)
		if err != nil {
			return nil, ValidationError{k: err.Error()}
		}
		data[k] = nv
	}
	return data, nil
}

// builtinSave validates the outgoing data and turns counter updates into
// relative increments. Virtual attributes are removed: nothing stores them.
func (m *Model) builtinSave(_ context.Context, tc *TransformContext, data value.Values) (value.Values, error) {
	verr := ValidationError{}
	incr := make(map[string]float64)
	for k, v := range data {
		a, ok := m.attrs[k]
		if !ok || a.PrimaryKey {
			delete(data, k)
			continue
		}
		if a.Virtual {
			if a.Relation != nil {
				if err := a.Relation.Kind.BeforeSave(tc.ID, v); err != nil {
					verr[k] = err.Error()
				}
			}
			delete(data, k)
			continue
		}
		if a.Counter && !tc.Insert {
			if d, ok := tc.Increments[k]; ok {
				if d != 0 {
					incr[k] = d
				}
			} else {
				verr[k] = "counter changes only through increments"
			}
			delete(data, k)
			continue
		}
		c, err := value.Coerce(a.Type, v)
		if err != nil {
			verr[k] = "invalid " + a.Type.String()
			continue
		}
		if msg := a.check(c); msg != "" {
			verr[k] = msg
			continue
		}
		data[k] = c
	}
	if tc.Insert {
		for _, n := range m.required {
			if missing(data[n]) {
				verr[n] = "required"
			}
		}
	} else {
		for k, v := range data {
			if m.attrs[k].Required && missing(v) {
				verr[k] = "required"
			}
		}
	}
	if len(verr) > 0 {
		return nil, verr
	}
	if tc.Insert {
		tc.Increments = nil
	} else {
		tc.Increments = incr
	}
	return data, nil
}

func missing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// check applies declared value rules to a canonical non-nil value.
func (a *Attribute) check(v any) string {
	if v == nil {
		return ""
	}
	if len(a.Enum) > 0 {
		s, _ := v.(string)
		found := false
		for _, e := range a.Enum {
			if e == s {
				found = true
				break
			}
		}
		if !found {
			return "must be one of " + strings.Join(a.Enum, ", ")
		}
	}
	if a.Min != nil || a.Max != nil {
		var f float64
		switch x := v.(type) {
		case int64:
			f = float64(x)
		case float64:
			f = x
		case string:
			f = float64(len([]rune(x)))
		}
		if a.Min != nil && f < *a.Min {
			return fmt.Sprintf("must be at least %v", *a.Min)
		}
		if a.Max != nil && f > *a.Max {
			return fmt.Sprintf("must be at most %v", *a.Max)
		}
	}
	if s, ok := v.(string); ok {
		if a.MaxLength > 0 && len([]rune(s)) > a.MaxLength {
			return fmt.Sprintf("longer than %d characters", a.MaxLength)
		}
		if a.Pattern != nil && !a.Pattern.MatchString(s) {
			return "does not match " + a.Pattern.String()
		}
	}
	return ""
}
