// Package tiered coordinates model instances stored across two backends: a
// fast tier (a hash store used as cache and for cache-only data) and a
// durable tier (the source of truth).
//
// Components:
//   - Registry: attribute and model declarations, sealed once per process.
//   - Pipeline: per model input/output/fetch/save transform chains built from
//     builtin stages, mixins and attribute hooks, frozen at Seal.
//   - Router: splits attribute names by the tiers that own them.
//   - Index coordinator: unique pointers (model, attribute, value) -> id,
//     maintained with a set-if-absent primitive on the fast tier.
//   - Instance: state, change tracking and counter deltas of one row.
//
// Reads of fast tier attributes try the fast tier first and fall back to the
// durable tier on a miss or error; values found that way are written back to
// the fast tier in the background (see DB.Wait).
//
// Typical use:
//
//	reg := tiered.NewRegistry()
//	_ = reg.Register(tiered.ModelDef{
//		Name: "user",
//		Attributes: []tiered.Attribute{
//			tiered.Attr("id", value.String, tiered.PrimaryKey(), tiered.Cached()),
//			tiered.Attr("email", value.String, tiered.In(tiered.Both), tiered.ReplaceIndex()),
//			tiered.Attr("logins", value.Integer, tiered.Cached(), tiered.Counter()),
//		},
//	})
//	db, _ := tiered.Open(ctx, tiered.Options{Registry: reg, Fast: fast, Durable: durable})
//	u, _ := db.New(ctx, "user", value.Values{"email": "ada@example.com"})
//	_ = u.Save(ctx, nil, tiered.Raw)
package tiered
