package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCommandsCounter(t *testing.T) {
	before := testutil.ToFloat64(CommandsTotal.WithLabelValues("get-chats", "ok"))
	CommandsTotal.WithLabelValues("get-chats", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CommandsTotal.WithLabelValues("get-chats", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	SessionsActive.Set(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wabridge_sessions_active 2")
}
