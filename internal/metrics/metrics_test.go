package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSessionsCreatedByStore(t *testing.T) {
	before := testutil.ToFloat64(SessionsCreated.WithLabelValues("memory"))
	SessionsCreated.WithLabelValues("memory").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(SessionsCreated.WithLabelValues("memory")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	SessionStoreDegraded.Set(1)
	defer SessionStoreDegraded.Set(0)
	LoginFailures.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	require.True(t, strings.Contains(text, "ioea_session_store_degraded 1"), "gauge missing:\n%s", text)
	require.Contains(t, text, "ioea_login_failures_total")
}
