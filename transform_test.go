package tiered

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/tiered/value"
)

func wrap(tag string) func(*TransformContext, value.Values) value.Values {
	return func(_ *TransformContext, d value.Values) value.Values {
		if s, ok := d["foo"].(string); ok {
			d["foo"] = tag + "(" + s + ")"
		}
		return d
	}
}

func sealOne(t *testing.T, d ModelDef) *Model {
	t.Helper()
	r := NewRegistry()
	if err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Seal(); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	m, err := r.Model(d.Name)
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	return m
}

func TestTransformOrder(t *testing.T) {
	hook := func(_ *TransformContext, v any) any { return "A(" + v.(string) + ")" }
	m := sealOne(t, ModelDef{
		Name: "m",
		Attributes: []Attribute{
			pk(),
			Attr("foo", value.String, Cached(), OnInput(hook), OnOutput(hook)),
		},
		Mixins: []Mixin{
			{Name: "M1", Input: wrap("M1"), Output: wrap("M1")},
			{Name: "M2", Input: wrap("M2"), Output: wrap("M2")},
		},
	})
	tc := &TransformContext{Model: m}

	in := m.pipe.runInput(tc, value.Values{"foo": "raw"})
	if got := in["foo"]; got != "A(M2(M1(raw)))" {
		t.Fatalf("input = %v", got)
	}
	out := m.pipe.runSyncOutput(tc, value.Values{"foo": "raw"})
	if got := out["foo"]; got != "M1(M2(A(raw)))" {
		t.Fatalf("output = %v", got)
	}
}

func TestSaveChainOrder(t *testing.T) {
	var trace []string
	step := func(name string) func(context.Context, *TransformContext, value.Values) (value.Values, error) {
		return func(_ context.Context, _ *TransformContext, d value.Values) (value.Values, error) {
			trace = append(trace, name)
			return d, nil
		}
	}
	m := sealOne(t, ModelDef{
		Name: "m",
		Attributes: []Attribute{
			pk(),
			Attr("foo", value.String, Cached(), OnSave(func(_ context.Context, _ *TransformContext, v any) (any, error) {
				trace = append(trace, "A")
				return v, nil
			})),
		},
		Mixins: []Mixin{{Name: "M1", Save: step("M1"), Fetch: step("M1")}, {Name: "M2", Save: step("M2"), Fetch: step("M2")}},
	})
	tc := &TransformContext{Model: m, Insert: true}
	if _, err := m.pipe.runSave(context.Background(), tc, value.Values{"foo": "x"}); err != nil {
		t.Fatalf("runSave: %v", err)
	}
	if got := strings.Join(trace, ","); got != "A,M2,M1" {
		t.Fatalf("save order = %s", got)
	}
	trace = nil
	if _, err := m.pipe.runFetch(context.Background(), tc, value.Values{"foo": "x"}); err != nil {
		t.Fatalf("runFetch: %v", err)
	}
	if got := strings.Join(trace, ","); got != "M1,M2" {
		t.Fatalf("fetch order = %s", got)
	}
}

func TestUserModeFiltering(t *testing.T) {
	m := sealOne(t, ModelDef{Name: "m", Attributes: []Attribute{
		pk(),
		Attr("name", value.String, Cached()),
		Attr("role", value.String, Cached(), Guarded()),
		Attr("secret", value.String, Cached(), Hidden()),
	}})
	raw := value.Values{"id": "9", "name": "ada", "role": "admin", "secret": "s", "ghost": 1}

	user := m.pipe.runInput(&TransformContext{Model: m, Mode: User}, raw)
	if _, ok := user["role"]; ok {
		t.Fatalf("guarded attribute passed user input: %v", user)
	}
	if _, ok := user["id"]; ok {
		t.Fatalf("primary key passed input: %v", user)
	}
	if _, ok := user["ghost"]; ok {
		t.Fatalf("unknown attribute passed input: %v", user)
	}
	internal := m.pipe.runInput(&TransformContext{Model: m, Mode: Raw}, raw)
	if internal["role"] != "admin" {
		t.Fatalf("raw input dropped guarded attribute: %v", internal)
	}

	out := m.pipe.runSyncOutput(&TransformContext{Model: m, Mode: User}, value.Values{"name": "ada", "secret": "s"})
	if _, ok := out["secret"]; ok {
		t.Fatalf("hidden attribute in user output: %v", out)
	}
	out = m.pipe.runSyncOutput(&TransformContext{Model: m, Mode: Raw}, value.Values{"secret": "s"})
	if out["secret"] != "s" {
		t.Fatalf("raw output dropped hidden attribute: %v", out)
	}
}

func TestSaveValidation(t *testing.T) {
	m := sealOne(t, ModelDef{Name: "m", Attributes: []Attribute{
		pk(),
		Attr("email", value.String, Cached(), Required(), Pattern(regexp.MustCompile(`^[^@]+@[^@]+$`))),
		Attr("age", value.Integer, Stored(), Range(0, 150)),
		Attr("plan", value.Enum, Stored(), OneOf("free", "pro")),
		Attr("nick", value.String, Stored(), MaxLength(3)),
	}})
	ctx := context.Background()

	_, err := m.pipe.runSave(ctx, &TransformContext{Model: m, Insert: true},
		value.Values{"age": 200, "plan": "gold", "nick": "toolong"})
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("runSave: got %v, want ValidationError", err)
	}
	for _, k := range []string{"email", "age", "plan", "nick"} {
		if _, ok := ve[k]; !ok {
			t.Fatalf("missing message for %s in %v", k, ve)
		}
	}

	_, err = m.pipe.runSave(ctx, &TransformContext{Model: m, Insert: true}, value.Values{"email": "nope"})
	if !errors.As(err, &ve) || ve["email"] == "" {
		t.Fatalf("pattern: got %v", err)
	}
	_, err = m.pipe.runSave(ctx, &TransformContext{Model: m, Insert: true}, value.Values{"email": "a@b", "age": "x"})
	if !errors.As(err, &ve) || ve["age"] == "" {
		t.Fatalf("type: got %v", err)
	}

	// required is only enforced on insert for absent attributes
	out, err := m.pipe.runSave(ctx, &TransformContext{Model: m}, value.Values{"age": "42"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out["age"] != int64(42) {
		t.Fatalf("age not coerced: %#v", out["age"])
	}
}

func TestSaveTurnsCountersIntoIncrements(t *testing.T) {
	m := sealOne(t, ModelDef{Name: "m", Attributes: []Attribute{
		pk(),
		Attr("hits", value.Integer, Cached(), Counter()),
	}})
	ctx := context.Background()

	tc := &TransformContext{Model: m, Increments: map[string]float64{"hits": 2}}
	out, err := m.pipe.runSave(ctx, tc, value.Values{"hits": int64(7)})
	if err != nil {
		t.Fatalf("runSave: %v", err)
	}
	if _, ok := out["hits"]; ok {
		t.Fatalf("counter sent as absolute value on update: %v", out)
	}
	if tc.Increments["hits"] != 2 {
		t.Fatalf("increments = %v", tc.Increments)
	}

	tc = &TransformContext{Model: m}
	if _, err := m.pipe.runSave(ctx, tc, value.Values{"hits": int64(7)}); err == nil {
		t.Fatalf("direct counter write on update accepted")
	}

	tc = &TransformContext{Model: m, Insert: true, Increments: map[string]float64{"hits": 7}}
	out, err = m.pipe.runSave(ctx, tc, value.Values{"hits": int64(7)})
	if err != nil || out["hits"] != int64(7) || tc.Increments != nil {
		t.Fatalf("insert: out=%v incr=%v err=%v", out, tc.Increments, err)
	}
}

func TestFetchMaterializesVirtual(t *testing.T) {
	m := sealOne(t, ModelDef{Name: "m", Attributes: []Attribute{
		pk(),
		Attr("first", value.String, Cached()),
		Attr("label", value.String, Virtual(), OnFetch(func(_ context.Context, tc *TransformContext, _ any) (any, error) {
			return "node-" + tc.ID, nil
		})),
		Attr("born", value.Date, Stored()),
	}})
	tc := &TransformContext{Model: m, ID: "4", Names: []string{"first", "label", "born"}}
	out, err := m.pipe.runFetch(context.Background(), tc, value.Values{"first": "ada", "born": "2024-02-29", "junk": 1})
	if err != nil {
		t.Fatalf("runFetch: %v", err)
	}
	if out["label"] != "node-4" {
		t.Fatalf("virtual = %v", out["label"])
	}
	if _, ok := out["junk"]; ok {
		t.Fatalf("unknown column survived fetch: %v", out)
	}
	if got := value.PackDate(out["born"].(time.Time)); got != 20240229 {
		t.Fatalf("born = %v", out["born"])
	}
}

func TestAsyncOutputHooks(t *testing.T) {
	m := sealOne(t, ModelDef{Name: "m", Attributes: []Attribute{
		pk(),
		Attr("avatar", value.String, Cached(), OnOutputAsync(func(_ context.Context, _ *TransformContext, v any) (any, error) {
			return "https://cdn/" + v.(string), nil
		})),
		Attr("broken", value.String, Cached(), OnOutputAsync(func(context.Context, *TransformContext, any) (any, error) {
			return nil, errBoom
		})),
	}})
	ctx := context.Background()
	out, err := m.pipe.runOutput(ctx, &TransformContext{Model: m}, value.Values{"avatar": "a.png"})
	if err != nil || out["avatar"] != "https://cdn/a.png" {
		t.Fatalf("runOutput = %v, %v", out, err)
	}
	if _, err := m.pipe.runOutput(ctx, &TransformContext{Model: m}, value.Values{"broken": "x"}); !errors.Is(err, errBoom) {
		t.Fatalf("async failure: got %v", err)
	}
}
