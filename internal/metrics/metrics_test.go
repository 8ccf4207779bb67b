package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveAnnotation(t *testing.T) {
	before := testutil.ToFloat64(AnnotationPasses)
	ObserveAnnotation(time.Now())
	require.Equal(t, before+1, testutil.ToFloat64(AnnotationPasses))
}

func TestServerExposesMetrics(t *testing.T) {
	FetchesTotal.WithLabelValues("more_history", "ok").Inc()

	srv := httptest.NewServer(NewServer(":0").Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `chatfeed_fetches_total{op="more_history",result="ok"}`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}
