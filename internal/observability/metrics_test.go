package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.FindingsDetected.Inc()
	m.FindingsDetected.Inc()
	m.SwapsSkipped.WithLabelValues("router_mismatch").Inc()
	m.HistorySize.Set(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FindingsDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SwapsSkipped.WithLabelValues("router_mismatch")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.HistorySize))

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_detection_findings_total")
	assert.Contains(t, names, "test_ingestion_swaps_skipped_total")
}

func TestRecordDBQuery_CountsErrors(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "unit_test"))

	RecordDBQuery("postgres", "unit_test", 0.01, nil)
	RecordDBQuery("postgres", "unit_test", 0.02, errors.New("boom"))

	after := testutil.ToFloat64(DefaultMetrics.DBQueryErrors.WithLabelValues("postgres", "unit_test"))
	assert.Equal(t, before+1, after)
}

func TestHandler_ServesDefaultMetrics(t *testing.T) {
	RecordSwapObserved()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "sandwich_watch_ingestion_swaps_observed_total"))
}
