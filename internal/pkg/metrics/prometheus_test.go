package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordEntities_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(SyncEntitiesTotal.WithLabelValues("workflow", "test_created"))

	RecordEntities("workflow", "test_created", 0)
	RecordEntities("workflow", "test_created", 3)

	after := testutil.ToFloat64(SyncEntitiesTotal.WithLabelValues("workflow", "test_created"))
	assert.Equal(t, 3.0, after-before)
}

func TestRecordAIUsage(t *testing.T) {
	input := AITokensTotal.WithLabelValues("unknown", "input")
	output := AITokensTotal.WithLabelValues("unknown", "output")
	beforeIn, beforeOut := testutil.ToFloat64(input), testutil.ToFloat64(output)

	RecordAIUsage("", 120, 0, 0)

	assert.Equal(t, 120.0, testutil.ToFloat64(input)-beforeIn)
	assert.Equal(t, 0.0, testutil.ToFloat64(output)-beforeOut)
}

func TestSetBool(t *testing.T) {
	SetBool(SchedulerRunning, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(SchedulerRunning))
	SetBool(SchedulerRunning, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(SchedulerRunning))
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	counter := HTTPRequestsTotal.WithLabelValues("GET", "/things/{id}", "418")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(counter)-before)
}
