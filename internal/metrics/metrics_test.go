package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CountsAndExposes(t *testing.T) {
	r := NewRegistry()
	r.Mutations.WithLabelValues("sale", "create", "applied").Inc()
	r.Mutations.WithLabelValues("sale", "create", "applied").Inc()
	r.IntegrityErrors.Inc()
	r.StockMovements.WithLabelValues("reservation").Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Mutations.WithLabelValues("sale", "create", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.IntegrityErrors))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.StockMovements.WithLabelValues("reservation")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "commerce_mutations_total")
	assert.Contains(t, rec.Body.String(), "commerce_integrity_errors_total 1")
}
