package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentsAreExposed(t *testing.T) {
	ObservationsStored.Inc()
	QuotaRemaining.Set(4200)
	RouteScans.WithLabelValues("completed").Inc()

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	exposition := string(body)
	assert.Contains(t, exposition, "globegenius_scan_observations_total")
	assert.Contains(t, exposition, "globegenius_quota_remaining_calls 4200")
	assert.Contains(t, exposition, `globegenius_scan_routes_total{outcome="completed"}`)
}
