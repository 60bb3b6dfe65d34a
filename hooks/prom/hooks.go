// Package promhook counts tiered events as Prometheus metrics.
package promhook

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiered"
)

type Hooks struct {
	fallbacks    *prometheus.CounterVec
	repopulate   *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	secondary    *prometheus.CounterVec
	partialSaves *prometheus.CounterVec
}

var _ tiered.Hooks = (*Hooks)(nil)

// New creates the collectors under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiered",
			Name:      name,
			Help:      help,
		}, labels)
	}
	h := &Hooks{
		fallbacks:    counter("cache_fallbacks_total", "Reads served by the durable tier.", "model", "reason"),
		repopulate:   counter("repopulate_failures_total", "Failed fast tier write-backs.", "model"),
		conflicts:    counter("index_conflicts_total", "Saves rejected by a taken index value.", "model", "attribute"),
		secondary:    counter("secondary_write_failures_total", "Tolerated fast tier write failures.", "model"),
		partialSaves: counter("partial_saves_total", "Saves that failed after reserving index values.", "model"),
	}
	for _, c := range []prometheus.Collector{h.fallbacks, h.repopulate, h.conflicts, h.secondary, h.partialSaves} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) CacheFallback(model, reason string) {
	h.fallbacks.WithLabelValues(model, reason).Inc()
}

func (h *Hooks) RepopulateFailed(model, _ string, _ error) {
	h.repopulate.WithLabelValues(model).Inc()
}

func (h *Hooks) IndexConflict(model, attribute string) {
	h.conflicts.WithLabelValues(model, attribute).Inc()
}

func (h *Hooks) SecondaryWriteFailed(model string, _ error) {
	h.secondary.WithLabelValues(model).Inc()
}

func (h *Hooks) PartialSave(model, _ string, _ error) {
	h.partialSaves.WithLabelValues(model).Inc()
}
