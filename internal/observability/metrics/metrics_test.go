package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveHTTPRequest(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("tasks", "GET", 200, 30*time.Millisecond)
	m.ObserveHTTPRequest("tasks", "GET", 503, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("tasks", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("tasks", "GET", "503")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpErrors.WithLabelValues("tasks", "GET")))
}

func TestObserveWorkflowAndActivity(t *testing.T) {
	m := New()
	m.ObserveWorkflow("create", "ok", 2*time.Second)
	m.ObserveWorkflow("create", "ok", time.Second)
	m.ObserveActivity("task.created")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.workflowRuns.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activityEvents.WithLabelValues("task.created")))

	var nilMetrics *Metrics
	nilMetrics.ObserveWorkflow("none", "ok", time.Millisecond)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveWorkflow("list", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lumin_workflow_runs_total{action="list",result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
