package opsapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStatus struct{ snap StatusSnapshot }

func (s stubStatus) Status() StatusSnapshot { return s.snap }

type stubCacheStats struct{}

func (stubCacheStats) CacheStats() any { return map[string]any{"hit_rate": 0.5} }

type stubAuditTail struct{ lines []string }

func (s stubAuditTail) AuditTail(int) ([]string, error) { return s.lines, nil }

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(token string) *Server {
	snap := StatusSnapshot{KillSwitchActive: true, KillSwitchReason: "drill", GeneratedAt: time.Now().UTC()}
	return NewServer(Config{Port: 0, AuthToken: token},
		stubStatus{snap: snap}, stubCacheStats{}, stubAuditTail{lines: []string{`{"kind":"PlaceStopLoss"}`}},
		quietLogger())
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	s := newTestServer("secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusRejectsMissingToken(t *testing.T) {
	s := newTestServer("secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusReturnsSnapshotWithToken(t *testing.T) {
	s := newTestServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.KillSwitchActive)
	assert.Equal(t, "drill", snap.KillSwitchReason)
}

func TestCacheStatsEndpoint(t *testing.T) {
	s := newTestServer("")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hit_rate")
}

func TestAuditTailEndpoint(t *testing.T) {
	s := newTestServer("")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/tail", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PlaceStopLoss")
}

func TestStatusUnavailableWithoutProvider(t *testing.T) {
	s := NewServer(Config{}, nil, nil, nil, quietLogger())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
