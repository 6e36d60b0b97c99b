package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/api/v1/projects/", "200", 20*time.Millisecond)
	m.ObserveAPI("GET", "/api/v1/projects/", "200", 30*time.Millisecond)
	m.IncWriteRejection("label.create", "conflict")
	m.WSGauge().Inc()
	m.ObserveTask("email.send", "done", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/api/v1/projects/", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeRejections.WithLabelValues("label.create", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tb_task_runs_total")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ApiInflightInc()
	m.ObserveWrite("x", "success", time.Millisecond)
	assert.Nil(t, m.WSGauge())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, ParseHeaders("a=1, b=2,bad,=x"))
	assert.Nil(t, ParseHeaders(""))
}
