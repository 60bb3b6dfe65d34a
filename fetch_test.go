package tiered

import (
	"context"
	"testing"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

func fills(b *memBackend) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.saves {
		if s.Fill {
			n++
		}
	}
	return n
}

func TestRepopulationRestoresWholeRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, nil)
	in := mustNew(t, db, value.Values{"foo": "f", "email": "a@x"})
	mustSave(t, in)
	id, _ := in.ID()
	db.fast.evict("user", id)

	h, _ := db.Load("user", id)
	got, found, err := h.Fetch(ctx, FetchOptions{Names: []string{"foo"}})
	if err != nil || !found || got["foo"] != "f" {
		t.Fatalf("Fetch foo = %v found=%v err=%v", got, found, err)
	}
	db.Wait()
	if !db.fast.isComplete("user", id) {
		t.Fatalf("repopulated row not marked complete")
	}

	h, _ = db.Load("user", id)
	got, found, err = h.Fetch(ctx, FetchOptions{Names: []string{"email"}})
	if err != nil || !found || got["email"] != "a@x" {
		t.Fatalf("Fetch email = %v found=%v err=%v", got, found, err)
	}
}

func TestPartialFastRowFallsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, nil)
	db.durable.put("user", "9", value.Values{"foo": "d", "email": "e@x"})
	db.fast.putPartial("user", "9", value.Values{"foo": "d", "hits": int64(3)})

	h, _ := db.Load("user", "9")
	got, found, err := h.Fetch(ctx, FetchOptions{Names: []string{"foo", "email", "hits"}})
	if err != nil || !found {
		t.Fatalf("Fetch: found=%v err=%v", found, err)
	}
	if got["email"] != "e@x" || got["foo"] != "d" || got["hits"] != int64(3) {
		t.Fatalf("Fetch = %v", got)
	}
	if db.hooks.fallbacks["miss"] != 1 {
		t.Fatalf("fallback hooks = %v", db.hooks.fallbacks)
	}
	db.Wait()
	row, _ := db.fast.row("user", "9")
	if row["email"] != "e@x" || row["hits"] != int64(3) || !db.fast.isComplete("user", "9") {
		t.Fatalf("fast row after fill = %v", row)
	}
}

func TestRepopulateKeepsNewerSave(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, nil)
	in := mustNew(t, db, value.Values{"foo": "f", "email": "old@x"})
	mustSave(t, in)
	id, _ := in.ID()
	db.fast.evict("user", id)

	release := make(chan struct{})
	db.fast.hold = func(backend.SaveRequest) { <-release }

	r, _ := db.Load("user", id)
	if _, _, err := r.Fetch(ctx, FetchOptions{Names: []string{"foo"}}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	w, _ := db.Load("user", id)
	if err := w.Save(ctx, value.Values{"email": "new@x"}, Raw); err != nil {
		t.Fatalf("Save: %v", err)
	}
	close(release)
	db.Wait()

	if n := fills(db.fast); n != 1 {
		t.Fatalf("fill saves = %d, want only the fetch repopulation", n)
	}
	row, _ := db.fast.row("user", id)
	if row["email"] != "new@x" || row["foo"] != "f" {
		t.Fatalf("fast row = %v", row)
	}
	h, _ := db.Load("user", id)
	got, _, err := h.Fetch(ctx, FetchOptions{Names: []string{"email"}})
	if err != nil || got["email"] != "new@x" {
		t.Fatalf("Fetch email = %v, %v", got, err)
	}
	if _, found, _ := db.Find(ctx, "user", "email", "old@x"); found {
		t.Fatalf("old pointer kept")
	}
}

func TestVirtualOnlyFetchChecksRow(t *testing.T) {
	ctx := context.Background()
	def := ModelDef{Name: "node", Attributes: []Attribute{
		Attr("id", value.String, PrimaryKey(), Cached()),
		Attr("first", value.String, Cached()),
		Attr("label", value.String, Virtual(), OnFetch(func(_ context.Context, tc *TransformContext, _ any) (any, error) {
			return "node-" + tc.ID, nil
		})),
	}}
	db := newTestDB(t, nil, def)

	h, _ := db.Load("node", "404")
	got, found, err := h.Fetch(ctx, FetchOptions{Names: []string{"label"}})
	if err != nil || found || got != nil {
		t.Fatalf("missing row: %v found=%v err=%v", got, found, err)
	}

	db.fast.put("node", "1", value.Values{"first": "ada"})
	h, _ = db.Load("node", "1")
	got, found, err = h.Fetch(ctx, FetchOptions{Names: []string{"label"}})
	if err != nil || !found || got["label"] != "node-1" {
		t.Fatalf("existing row: %v found=%v err=%v", got, found, err)
	}
}
