package tiered

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
type Hooks interface {
	// The fast tier could not serve a read and the durable tier was consulted.
	// reason is "miss" or "error"
	CacheFallback(model, reason string)

	// Writing durable values back into the fast tier failed.
	RepopulateFailed(model, id string, err error)

	// A save lost an index reservation to another id.
	IndexConflict(model, attribute string)

	// A best-effort fast tier write failed and was not surfaced.
	SecondaryWriteFailed(model string, err error)

	// A save failed after index pointers were reserved.
	PartialSave(model, id string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheFallback(string, string)           {}
func (NopHooks) RepopulateFailed(string, string, error) {}
func (NopHooks) IndexConflict(string, string)           {}
func (NopHooks) SecondaryWriteFailed(string, error)     {}
func (NopHooks) PartialSave(string, string, error)      {}
