package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/sidefx/internal/adapters/metrics"
	"go.trai.ch/sidefx/internal/core/domain"
	"go.trai.ch/sidefx/internal/core/ports"
)

var _ ports.Metrics = (*metrics.Metrics)(nil)

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New()
	m.ObserveEvaluation(domain.KindValue)
	m.ObserveEvaluation(domain.KindValue)
	m.ObserveEvaluation(domain.KindException)
	m.ObserveDivergence(domain.AlgorithmRIDO)
	m.ObserveReport(domain.ReportPropertyValueDiff)
	m.ObserveCycle(domain.AlgorithmRIDO, 20*time.Millisecond)

	count, err := testutil.GatherAndCount(m.Gatherer(), "sidefx_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per kind")

	count, err = testutil.GatherAndCount(m.Gatherer(), "sidefx_search_cycle_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_StoredReportsReset(t *testing.T) {
	m := metrics.New()
	m.SetStoredReports(map[domain.ReportType]int{domain.ReportFlakyProperty: 2, domain.ReportExceptionThrown: 1})
	m.SetStoredReports(map[domain.ReportType]int{domain.ReportFlakyProperty: 3})

	count, err := testutil.GatherAndCount(m.Gatherer(), "sidefx_stored_reports")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.ObserveReport(domain.ReportFlakyProperty)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sidefx_reports_total{type="FLAKY_PROPERTY"} 1`)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := metrics.New()
	m.ObserveDivergence(domain.AlgorithmREC)

	path := filepath.Join(t.TempDir(), "out", domain.MetricsFileName)
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sidefx_divergences_total{algorithm="rec"} 1`)
}
