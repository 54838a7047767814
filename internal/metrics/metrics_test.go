package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Enrichment("url", OutcomeCompleted)
	r.Enrichment("url", OutcomeCompleted)
	r.Enrichment("book", OutcomeFailed)
	r.ExtractionSource("youtube")
	r.AITagging(OutcomeTagged)
	r.BookLookup(OutcomeDenied)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.enrichments.WithLabelValues("url", OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.enrichments.WithLabelValues("book", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sources.WithLabelValues("youtube")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.aiTagging.WithLabelValues(OutcomeTagged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.bookLookups.WithLabelValues(OutcomeDenied)))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Enrichment("url", OutcomeCompleted)
		r.ExtractionSource("oembed")
		r.AITagging(OutcomeError)
		r.BookLookup(OutcomeFound)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).ExtractionSource("metascraper")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `shelf_extraction_source_total{source="metascraper"} 1`)
}
