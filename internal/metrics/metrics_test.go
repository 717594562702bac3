package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.Refreshes.WithLabelValues(RefreshRotated).Inc()
	m.Refreshes.WithLabelValues(RefreshReuse).Inc()
	m.Refreshes.WithLabelValues(RefreshReuse).Inc()
	m.OnlineUsers.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Refreshes.WithLabelValues(RefreshReuse)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OnlineUsers))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `workhub_auth_refresh_total{outcome="reuse"} 2`)
	assert.Contains(t, string(body), "workhub_realtime_online_users 3")
}
