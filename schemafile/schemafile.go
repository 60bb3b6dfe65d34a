// Package schemafile reads model declarations from YAML.
//
//	models:
//	  - name: user
//	    attributes:
//	      - {name: id, type: string, primary_key: true, tiers: fast}
//	      - {name: email, type: string, tiers: both, replace_index: true}
//	      - {name: visits, type: integer, tiers: fast, counter: true}
//	      - {name: posts, relation: {kind: has_many, target: post}}
//
// Transform hooks and mixins cannot be declared here; add them to the
// returned ModelDefs before registering.
package schemafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/tiered"
	"github.com/unkn0wn-root/tiered/value"
)

type File struct {
	Models []Model `yaml:"models"`
}

type Model struct {
	Name       string      `yaml:"name"`
	Attributes []Attribute `yaml:"attributes"`
}

type Attribute struct {
	Name         string    `yaml:"name"`
	Type         string    `yaml:"type"`
	Tiers        Tiers     `yaml:"tiers"`
	PrimaryKey   bool      `yaml:"primary_key"`
	Index        bool      `yaml:"index"`
	ReplaceIndex bool      `yaml:"replace_index"`
	Counter      bool      `yaml:"counter"`
	Required     bool      `yaml:"required"`
	Guarded      bool      `yaml:"guarded"`
	Hidden       bool      `yaml:"hidden"`
	Virtual      bool      `yaml:"virtual"`
	Default      any       `yaml:"default"`
	Enum         []string  `yaml:"enum"`
	Min          *float64  `yaml:"min"`
	Max          *float64  `yaml:"max"`
	Pattern      string    `yaml:"pattern"`
	MaxLength    int       `yaml:"max_length"`
	Relation     *Relation `yaml:"relation"`
}

type Relation struct {
	Kind   string `yaml:"kind"`
	Target string `yaml:"target"`
}

// Tiers accepts a single name or a list: fast, durable, both.
type Tiers tiered.Tier

func (t *Tiers) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	switch node.Kind {
	case yaml.ScalarNode:
		names = []string{node.Value}
	case yaml.SequenceNode:
		if err := node.Decode(&names); err != nil {
			return err
		}
	default:
		return fmt.Errorf("line %d: tiers must be a name or a list", node.Line)
	}
	var out tiered.Tier
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "fast", "cache":
			out |= tiered.Fast
		case "durable", "store":
			out |= tiered.Durable
		case "both":
			out |= tiered.Both
		default:
			return fmt.Errorf("line %d: unknown tier %q", node.Line, n)
		}
	}
	*t = Tiers(out)
	return nil
}

// Load reads and converts the file at path.
func Load(path string) ([]tiered.ModelDef, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defs, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Parse decodes YAML model declarations. Unknown keys are errors.
func Parse(data []byte) ([]tiered.ModelDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("schemafile: %w", err)
	}
	defs := make([]tiered.ModelDef, 0, len(f.Models))
	for _, m := range f.Models {
		d, err := m.def()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func (m Model) def() (tiered.ModelDef, error) {
	d := tiered.ModelDef{Name: m.Name}
	for _, a := range m.Attributes {
		attr, err := a.attr()
		if err != nil {
			return tiered.ModelDef{}, fmt.Errorf("schemafile: %s.%s: %w", m.Name, a.Name, err)
		}
		d.Attributes = append(d.Attributes, attr)
	}
	return d, nil
}

func (a Attribute) attr() (tiered.Attribute, error) {
	var opts []tiered.AttrOption
	typ := value.String
	if a.Type != "" {
		t, err := value.ParseType(a.Type)
		if err != nil {
			return tiered.Attribute{}, err
		}
		typ = t
	}
	if a.Tiers != 0 {
		opts = append(opts, tiered.In(tiered.Tier(a.Tiers)))
	}
	flags := []struct {
		on  bool
		opt tiered.AttrOption
	}{
		{a.PrimaryKey, tiered.PrimaryKey()},
		{a.Index, tiered.Indexed()},
		{a.ReplaceIndex, tiered.ReplaceIndex()},
		{a.Counter, tiered.Counter()},
		{a.Required, tiered.Required()},
		{a.Guarded, tiered.Guarded()},
		{a.Hidden, tiered.Hidden()},
		{a.Virtual, tiered.Virtual()},
	}
	for _, f := range flags {
		if f.on {
			opts = append(opts, f.opt)
		}
	}
	if a.Default != nil {
		opts = append(opts, tiered.Default(a.Default))
	}
	if len(a.Enum) > 0 {
		opts = append(opts, tiered.OneOf(a.Enum...))
	}
	if a.Min != nil || a.Max != nil {
		opts = append(opts, func(x *tiered.Attribute) { x.Min, x.Max = a.Min, a.Max })
	}
	if a.Pattern != "" {
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return tiered.Attribute{}, fmt.Errorf("pattern: %w", err)
		}
		opts = append(opts, tiered.Pattern(re))
	}
	if a.MaxLength > 0 {
		opts = append(opts, tiered.MaxLength(a.MaxLength))
	}
	if a.Relation != nil {
		kind, err := relationKind(a.Relation.Kind)
		if err != nil {
			return tiered.Attribute{}, err
		}
		opts = append(opts, tiered.Related(kind, a.Relation.Target))
	}
	return tiered.Attr(a.Name, typ, opts...), nil
}

func relationKind(s string) (tiered.RelationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "has_one", "one":
		return tiered.HasOne, nil
	case "has_many", "many":
		return tiered.HasMany, nil
	case "tree":
		return tiered.Tree, nil
	}
	return 0, fmt.Errorf("unknown relation kind %q", s)
}
