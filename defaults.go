package tiered

import (
	"time"

	"github.com/unkn0wn-root/tiered/idgen"
)

const defaultRepopulateTimeout = 5 * time.Second

// withDefaults fills the optional fields of o.
func (o Options) withDefaults() Options {
	o.Logger = coalesce[Logger](o.Logger, NopLogger{})
	o.Hooks = coalesce[Hooks](o.Hooks, NopHooks{})
	o.RepopulateTimeout = coalesce(o.RepopulateTimeout, defaultRepopulateTimeout)
	if o.IDGen == nil {
		o.IDGen = idgen.NewLocal()
	}
	return o
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
