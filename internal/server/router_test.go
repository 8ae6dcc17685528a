package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/manager"
	"github.com/loykin/gatewayd/internal/metrics"
)

type fixture struct {
	sup *fakeSupervisor
	gw  *fakeGateway
	dmn *fakeDaemon
	srv *httptest.Server
}

func setupRouter(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := &fixture{
		sup: &fakeSupervisor{
			status:   manager.Status{Running: true, Port: 4455, PID: 4242, StartedAt: &started},
			redPhone: manager.RedPhoneResult{Status: "stopped", Timestamp: "2026-01-02T03:04:05Z"},
		},
		gw:  &fakeGateway{health: gateway.Health{Status: "ok"}},
		dmn: &fakeDaemon{status: daemon.Status{Platform: "linux", Supported: true, ServiceLabel: "major-claw-gateway"}},
	}
	deps := Deps{
		Supervisor: f.sup,
		Gateway:    f.gw,
		Daemon:     f.dmn,
		Token:      func() string { return "tok-123" },
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.srv = httptest.NewServer(NewRouter(deps, "/api").Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func doReq(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestLifecycleRoutes(t *testing.T) {
	f := setupRouter(t)

	for _, tc := range []struct {
		method, path, call string
	}{
		{http.MethodGet, "/api/status", "status"},
		{http.MethodPost, "/api/start", "start"},
		{http.MethodPost, "/api/stop", "stop"},
		{http.MethodPost, "/api/restart", "restart"},
	} {
		resp, data := doReq(t, tc.method, f.srv.URL+tc.path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, tc.path)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		got := decode[map[string]any](t, data)
		assert.Equal(t, true, got["running"])
		assert.EqualValues(t, 4455, got["port"])
		assert.EqualValues(t, 4242, got["pid"])
		assert.Equal(t, "2026-01-02T03:04:05Z", got["startedAt"])
		assert.NotContains(t, got, "resources")
	}
	assert.Equal(t, []string{"status", "start", "stop", "restart"}, f.sup.calls)
}

func TestStatusStoppedOmitsPID(t *testing.T) {
	f := setupRouter(t)
	f.sup.status = manager.Status{Running: false, Port: 4455}

	resp, data := doReq(t, http.MethodGet, f.srv.URL+"/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, data)
	assert.Equal(t, false, got["running"])
	assert.NotContains(t, got, "pid")
	assert.NotContains(t, got, "startedAt")
}

func TestStatusIncludesResourcesForCurrentPID(t *testing.T) {
	usage := metrics.ResourceUsage{PID: 4242, CPUPercent: 12.5, MemoryRSS: 1 << 20, MemoryMB: 1, NumThreads: 7}
	f := setupRouter(t, func(d *Deps) { d.Resources = fixedResources{usage: usage, ok: true} })

	_, data := doReq(t, http.MethodGet, f.srv.URL+"/api/status", nil)
	got := decode[statusResp](t, data)
	require.NotNil(t, got.Resources)
	assert.EqualValues(t, 7, got.Resources.NumThreads)
	assert.InDelta(t, 12.5, got.Resources.CPUPercent, 0.001)

	// A sample taken from a previous child is not reported.
	f.sup.status.PID = 9999
	_, data = doReq(t, http.MethodGet, f.srv.URL+"/api/status", nil)
	got = decode[statusResp](t, data)
	assert.Nil(t, got.Resources)
}

func TestLifecycleErrorIs500(t *testing.T) {
	f := setupRouter(t)
	f.sup.err = manager.ErrRecordPoisoned

	resp, data := doReq(t, http.MethodPost, f.srv.URL+"/api/start", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	got := decode[errorResp](t, data)
	assert.Equal(t, manager.ErrRecordPoisoned.Error(), got.Error)
}

func TestRedPhone(t *testing.T) {
	f := setupRouter(t)

	resp, data := doReq(t, http.MethodPost, f.srv.URL+"/api/red-phone", map[string]string{"reason": "runaway agent"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[manager.RedPhoneResult](t, data)
	assert.Equal(t, "stopped", got.Status)
	assert.Equal(t, "runaway agent", got.Reason)
	assert.Equal(t, []string{"runaway agent"}, f.sup.reasons)
}

func TestRedPhoneValidation(t *testing.T) {
	f := setupRouter(t)

	resp, data := doReq(t, http.MethodPost, f.srv.URL+"/api/red-phone", map[string]string{"reason": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, manager.ErrReasonRequired.Error(), decode[errorResp](t, data).Error)

	resp, data = doReq(t, http.MethodPost, f.srv.URL+"/api/red-phone", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[errorResp](t, data).Error, "invalid JSON")
}

func TestRedPhoneFailureIs500(t *testing.T) {
	f := setupRouter(t)
	f.sup.err = errBoom

	resp, _ := doReq(t, http.MethodPost, f.srv.URL+"/api/red-phone", map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthProxy(t *testing.T) {
	f := setupRouter(t)

	resp, data := doReq(t, http.MethodGet, f.srv.URL+"/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[gateway.Health](t, data).Status)

	f.gw.healthErr = errors.New("connection refused")
	resp, data = doReq(t, http.MethodGet, f.srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "connection refused", decode[errorResp](t, data).Error)
}

func TestAuditLogs(t *testing.T) {
	f := setupRouter(t)
	f.gw.logs = []gateway.AuditLogEntry{{ID: "a1", Category: "safety", Action: "red_phone", Actor: "user"}}

	resp, data := doReq(t, http.MethodGet, f.srv.URL+"/api/audit/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decode[[]gateway.AuditLogEntry](t, data)
	require.Len(t, logs, 1)
	assert.Equal(t, "a1", logs[0].ID)

	resp, _ = doReq(t, http.MethodGet, f.srv.URL+"/api/audit/logs?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int{gateway.DefaultAuditLimit, 5}, f.gw.limits)
}

func TestAuditLogsEmptyIsArray(t *testing.T) {
	f := setupRouter(t)

	_, data := doReq(t, http.MethodGet, f.srv.URL+"/api/audit/logs", nil)
	assert.JSONEq(t, `[]`, string(data))
}

func TestAuditLogsErrors(t *testing.T) {
	f := setupRouter(t)

	for _, q := range []string{"abc", "0", "-3"} {
		resp, _ := doReq(t, http.MethodGet, f.srv.URL+"/api/audit/logs?limit="+q, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
	assert.Empty(t, f.gw.limits)

	f.gw.logsErr = errBoom
	resp, _ := doReq(t, http.MethodGet, f.srv.URL+"/api/audit/logs", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSessionToken(t *testing.T) {
	f := setupRouter(t)

	resp, data := doReq(t, http.MethodGet, f.srv.URL+"/api/session-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"token":"tok-123"}`, string(data))
}

func TestDaemonRoutes(t *testing.T) {
	f := setupRouter(t)

	resp, data := doReq(t, http.MethodGet, f.srv.URL+"/api/daemon", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[daemon.Status](t, data)
	assert.Equal(t, "linux", st.Platform)
	assert.True(t, st.Supported)

	for _, op := range []string{"start", "stop", "restart"} {
		resp, _ = doReq(t, http.MethodPost, f.srv.URL+"/api/daemon/"+op, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, op)
	}

	resp, _ = doReq(t, http.MethodPost, f.srv.URL+"/api/daemon/enable", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"status", "start", "stop", "restart", "enable"}, f.dmn.calls)
	assert.Equal(t, []bool{false}, f.dmn.enabled)
}

func TestDaemonEnableValidation(t *testing.T) {
	f := setupRouter(t)

	resp, data := doReq(t, http.MethodPost, f.srv.URL+"/api/daemon/enable", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "enabled is required", decode[errorResp](t, data).Error)

	resp, _ = doReq(t, http.MethodPost, f.srv.URL+"/api/daemon/enable", "nope")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, f.dmn.calls)
}

func TestDaemonErrorIs500(t *testing.T) {
	f := setupRouter(t)
	f.dmn.err = &daemon.CommandError{Op: "systemctl start", Stderr: "unit not found"}

	resp, data := doReq(t, http.MethodPost, f.srv.URL+"/api/daemon/start", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decode[errorResp](t, data).Error, "unit not found")
}

func TestMetricsMount(t *testing.T) {
	f := setupRouter(t, func(d *Deps) {
		d.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "gatewayd_gateway_running 1\n")
		})
	})

	resp, data := doReq(t, http.MethodGet, f.srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "gatewayd_gateway_running")

	g := setupRouter(t)
	resp, _ = doReq(t, http.MethodGet, g.srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownRouteIs404(t *testing.T) {
	f := setupRouter(t)
	resp, _ := doReq(t, http.MethodGet, f.srv.URL+"/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestShutdownsOutliveClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sup := &fakeSupervisor{status: manager.Status{Port: 4455}}
	h := NewRouter(Deps{Supervisor: sup}, "/api").Handler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, tc := range []struct{ path, body string }{
		{"/api/stop", ""},
		{"/api/restart", ""},
		{"/api/red-phone", `{"reason":"leak"}`},
	} {
		req := httptest.NewRequest(http.MethodPost, tc.path, bytes.NewBufferString(tc.body)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, tc.path)
	}

	require.Len(t, sup.ctxs, 3)
	for _, c := range sup.ctxs {
		assert.NoError(t, c.Err())
	}
}
