// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeFound     = "found"
	OutcomeNotFound  = "not_found"
	OutcomeDenied    = "denied"
	OutcomeTagged    = "tagged"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
)

// Recorder counts pipeline events. A nil *Recorder records nothing, so
// components can be built without metrics.
type Recorder struct {
	enrichments *prometheus.CounterVec
	sources     *prometheus.CounterVec
	aiTagging   *prometheus.CounterVec
	bookLookups *prometheus.CounterVec
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelf_enrichments_total",
			Help: "Enrichment runs by item kind and final metadata status.",
		}, []string{"kind", "outcome"}),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelf_extraction_source_total",
			Help: "Extractions by the source that produced the metadata.",
		}, []string{"source"}),
		aiTagging: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelf_ai_tagging_total",
			Help: "Background AI tagging runs by outcome.",
		}, []string{"outcome"}),
		bookLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shelf_book_lookups_total",
			Help: "Google Books lookups by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(r.enrichments, r.sources, r.aiTagging, r.bookLookups)
	return r
}

// Enrichment counts one finished enrichment run.
func (r *Recorder) Enrichment(kind, outcome string) {
	if r == nil {
		return
	}
	r.enrichments.WithLabelValues(kind, outcome).Inc()
}

// ExtractionSource counts which cascade stage produced metadata.
func (r *Recorder) ExtractionSource(source string) {
	if r == nil {
		return
	}
	r.sources.WithLabelValues(source).Inc()
}

// AITagging counts one background tagging run.
func (r *Recorder) AITagging(outcome string) {
	if r == nil {
		return
	}
	r.aiTagging.WithLabelValues(outcome).Inc()
}

// BookLookup counts one book search.
func (r *Recorder) BookLookup(outcome string) {
	if r == nil {
		return
	}
	r.bookLookups.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
