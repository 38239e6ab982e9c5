package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observer(t *testing.T) {
	m := New()

	m.PeriodCompleted("D1", 1, 2*time.Millisecond)
	m.PeriodCompleted("D1", 2, 3*time.Millisecond)
	m.RunCompleted("D1", 2, 3, nil)
	m.RunCompleted("D2", 1, 0, errors.New("boom"))
	m.JobDone(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(StatusFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WarningsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PeriodDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RunCompleted("D1", 4, 0, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `cloengine_runs_total{status="success"} 1`))
}
