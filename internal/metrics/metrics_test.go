package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.SetChainLength(3)
	m.ObserveValidation(true, time.Millisecond)
	m.ObserveValidation(false, time.Millisecond)
	m.ObserveValidation(false, time.Millisecond)
	m.ObserveAttack("tampering", false)
	m.ObserveSubmission("submit", "ok")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.chainLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.validations.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attacks.WithLabelValues("tampering", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("submit", "ok")))
}

func TestMetrics_IndependentInstances(t *testing.T) {
	a, b := New(), New()
	a.SetChainLength(5)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.chainLength))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SetChainLength(2)
	m.ObserveRebuild(time.Second)
	m.ObserveArchive("verified")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "portal_chain_length 2")
	assert.Contains(t, string(body), `portal_archive_verifications_total{status="verified"} 1`)
	assert.Contains(t, string(body), "portal_chain_rebuild_duration_seconds_count 1")
}
