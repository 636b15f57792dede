package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	require.NoError(t, err)

	r.ObserveSettlement(SourceAPI, ResultSuccess, 3, 2*time.Millisecond)
	r.ObserveSettlement(SourceAPI, ResultInvalid, 0, time.Millisecond)
	r.ObserveExport("xlsx", ResultSuccess)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.settlements.WithLabelValues(SourceAPI, ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.settlements.WithLabelValues(SourceAPI, ResultInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exports.WithLabelValues("xlsx", ResultSuccess)))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warikan_settlements_total")
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveSettlement(SourceDiscord, ResultError, 0, 0)
		r.ObserveExport("pdf", ResultError)
		r.ObserveReminder(ResultSuccess)
	})
}

func TestNew_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}
