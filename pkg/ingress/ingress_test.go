package ingress_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openhqm/openhqm/pkg/envelope"
	"github.com/openhqm/openhqm/pkg/ingress"
	memqueue "github.com/openhqm/openhqm/pkg/queue/adapters/memory"
	memstore "github.com/openhqm/openhqm/pkg/statestore/adapters/memory"
	"github.com/stretchr/testify/require"
)

func newTestServer() *ingress.Server {
	q := memqueue.New(memqueue.Config{BufferSize: 10})
	store := memstore.New()
	cfg := ingress.Config{RequestQueue: "requests", StateTTL: time.Minute, Version: "test"}
	return ingress.NewServer(cfg, q, store, nil)
}

func TestSubmitThenStatusReturnsPending(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"payload": map[string]interface{}{"operation": "echo"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitResp ingress.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitResp))
	require.Equal(t, envelope.StatusPending, submitResp.Status)
	require.NotEmpty(t, submitResp.CorrelationID)

	statusReq := httptest.NewRequest(http.MethodGet, "/api/v1/status/"+submitResp.CorrelationID, nil)
	statusRec := httptest.NewRecorder()
	s.Echo.ServeHTTP(statusRec, statusReq)

	require.Equal(t, http.StatusOK, statusRec.Code)
	var statusResp ingress.StatusResponse
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusResp))
	require.Equal(t, envelope.StatusPending, statusResp.Status)
}

func TestSubmitRejectsInvalidPriority(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"payload":  map[string]interface{}{},
		"metadata": map[string]interface{}{"priority": 10},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusUnknownCorrelationIDIs404(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthReportsOK(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var health ingress.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
}
