package tiered

import (
	"fmt"

	"github.com/unkn0wn-root/tiered/value"
)

// RelationKind is the closed set of association shapes a virtual attribute
// can hold. Related ids live in the holder; linking logic belongs to callers.
type RelationKind uint8

const (
	HasOne RelationKind = iota + 1
	HasMany
	// Tree is a self-referencing HasMany: the related ids are children of the
	// same model.
	Tree
)

type Relation struct {
	Kind   RelationKind
	Target string
}

func (k RelationKind) valid() bool { return k >= HasOne && k <= Tree }

func (k RelationKind) String() string {
	switch k {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case Tree:
		return "tree"
	}
	return "relation(?)"
}

// DefaultValue is the holder value of a new instance.
func (k RelationKind) DefaultValue() any {
	switch k {
	case HasMany, Tree:
		return []string{}
	}
	return nil
}

// OnInput normalizes a holder value: an id for HasOne, a deduplicated id
// list for HasMany and Tree.
func (k RelationKind) OnInput(v any) (any, error) {
	if v == nil {
		return k.DefaultValue(), nil
	}
	switch k {
	case HasOne:
		return value.Key(value.String, v)
	case HasMany, Tree:
		var in []string
		switch x := v.(type) {
		case []string:
			in = x
		case []any:
			in = make([]string, 0, len(x))
			for _, e := range x {
				s, err := value.Key(value.String, e)
				if err != nil {
					return nil, err
				}
				in = append(in, s)
			}
		case string:
			in = []string{x}
		default:
			return nil, fmt.Errorf("relation %s: unsupported value %T", k, v)
		}
		seen := make(map[string]struct{}, len(in))
		out := make([]string, 0, len(in))
		for _, id := range in {
			if _, dup := seen[id]; dup || id == "" {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
		return out, nil
	}
	return nil, fmt.Errorf("relation %s: unknown kind", k)
}

// BeforeSave checks a holder value of instance id before it is persisted
// by attribute hooks.
func (k RelationKind) BeforeSave(id string, v any) error {
	switch k {
	case HasOne:
		return nil
	case HasMany:
		return nil
	case Tree:
		ids, _ := v.([]string)
		for _, child := range ids {
			if child == id {
				return fmt.Errorf("tree node cannot be its own child")
			}
		}
		return nil
	}
	return fmt.Errorf("relation %s: unknown kind", k)
}
