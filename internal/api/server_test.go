package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/egemenkeskn/trader-server/internal/dispatcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type triggerCall struct {
	accountID string
	force     bool
}

type mockTriggerer struct {
	sync.Mutex
	calls []triggerCall
	err   error
}

func (m *mockTriggerer) Trigger(accountID string, force bool) error {
	m.Lock()
	defer m.Unlock()
	m.calls = append(m.calls, triggerCall{accountID, force})
	return m.err
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestTriggerAccepted(t *testing.T) {
	trig := &mockTriggerer{}
	mux := NewMux(trig, time.Now(), zap.NewNop())

	rec := do(t, mux, http.MethodPost, "/api/trigger", `{"accountId":"acc-1","force":true}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "acc-1", resp.AccountID)
	assert.True(t, resp.Force)

	require.Len(t, trig.calls, 1)
	assert.Equal(t, triggerCall{"acc-1", true}, trig.calls[0])
}

func TestTriggerEmptyBodySweepsAll(t *testing.T) {
	trig := &mockTriggerer{}
	mux := NewMux(trig, time.Now(), zap.NewNop())

	rec := do(t, mux, http.MethodPost, "/api/trigger", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, trig.calls, 1)
	assert.Equal(t, triggerCall{"", false}, trig.calls[0])
}

func TestTriggerBadBody(t *testing.T) {
	trig := &mockTriggerer{}
	mux := NewMux(trig, time.Now(), zap.NewNop())

	rec := do(t, mux, http.MethodPost, "/api/trigger", `{"accountId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, trig.calls)
}

func TestTriggerQueueFull(t *testing.T) {
	trig := &mockTriggerer{err: dispatcher.ErrQueueFull}
	mux := NewMux(trig, time.Now(), zap.NewNop())

	rec := do(t, mux, http.MethodPost, "/api/trigger", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerMethodNotAllowed(t *testing.T) {
	mux := NewMux(&mockTriggerer{}, time.Now(), zap.NewNop())
	rec := do(t, mux, http.MethodGet, "/api/trigger", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	mux := NewMux(&mockTriggerer{}, time.Now().Add(-time.Minute), zap.NewNop())
	rec := do(t, mux, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.GreaterOrEqual(t, resp["uptimeSec"].(float64), 59.0)
}
