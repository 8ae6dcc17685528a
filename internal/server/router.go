package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/manager"
	"github.com/loykin/gatewayd/internal/metrics"
)

// Supervisor is the lifecycle surface of *manager.Manager.
type Supervisor interface {
	Status() (manager.Status, error)
	Start() (manager.Status, error)
	Stop(ctx context.Context) (manager.Status, error)
	Restart(ctx context.Context) (manager.Status, error)
	RedPhone(ctx context.Context, reason string) (manager.RedPhoneResult, error)
}

// GatewayAPI is the read side of the gateway client proxied by the router.
type GatewayAPI interface {
	Health(ctx context.Context) (gateway.Health, error)
	AuditLogs(ctx context.Context, limit int) ([]gateway.AuditLogEntry, error)
}

// ResourceSource reports the latest resource sample of the child.
type ResourceSource interface {
	Latest() (metrics.ResourceUsage, bool)
}

// Deps are the collaborators behind the control API. Resources, Metrics
// and Logger are optional.
type Deps struct {
	Supervisor Supervisor
	Gateway    GatewayAPI
	Daemon     daemon.Controller
	Resources  ResourceSource
	Token      func() string
	Metrics    http.Handler
	Logger     *slog.Logger
}

// Router serves the control API under basePath:
//
//	GET  /status            supervisor status plus resource usage
//	POST /start|stop|restart
//	POST /red-phone         body: {"reason": "..."}
//	GET  /health            proxied gateway health
//	GET  /audit/logs        proxied gateway audit trail, ?limit=N
//	GET  /session-token
//	GET  /daemon            service definition status
//	POST /daemon/enable     body: {"enabled": bool}
//	POST /daemon/start|stop|restart
//
// /metrics is mounted at the root when Deps.Metrics is set.
type Router struct {
	deps     Deps
	basePath string
	log      *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(deps Deps, basePath string) *Router {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Router{deps: deps, basePath: sanitizeBase(basePath), log: log.With("component", "api")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.accessLog)
	if r.deps.Metrics != nil {
		g.GET("/metrics", gin.WrapH(r.deps.Metrics))
	}
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.POST("/red-phone", r.handleRedPhone)
	group.GET("/health", r.handleHealth)
	group.GET("/audit/logs", r.handleAuditLogs)
	group.GET("/session-token", r.handleSessionToken)

	d := group.Group("/daemon")
	d.GET("", r.handleDaemonStatus)
	d.POST("/enable", r.handleDaemonEnable)
	d.POST("/start", r.daemonOp((daemon.Controller).Start))
	d.POST("/stop", r.daemonOp((daemon.Controller).Stop))
	d.POST("/restart", r.daemonOp((daemon.Controller).Restart))
	return g
}

// NewServer returns an unstarted HTTP server for h.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Stop and restart can take Tg+Tk.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (r *Router) accessLog(c *gin.Context) {
	began := time.Now()
	c.Next()
	r.log.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(began))
}

// --- Handlers ---

type statusResp struct {
	manager.Status
	Resources *metrics.ResourceUsage `json:"resources,omitempty"`
}

func (r *Router) lifecycle(c *gin.Context, st manager.Status, err error) {
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	resp := statusResp{Status: st}
	if r.deps.Resources != nil && st.Running {
		if u, ok := r.deps.Resources.Latest(); ok && int(u.PID) == st.PID {
			resp.Resources = &u
		}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.deps.Supervisor.Status()
	r.lifecycle(c, st, err)
}

func (r *Router) handleStart(c *gin.Context) {
	st, err := r.deps.Supervisor.Start()
	r.lifecycle(c, st, err)
}

// shutdownCtx keeps a shutdown running after the client disconnects.
func shutdownCtx(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (r *Router) handleStop(c *gin.Context) {
	st, err := r.deps.Supervisor.Stop(shutdownCtx(c))
	r.lifecycle(c, st, err)
}

func (r *Router) handleRestart(c *gin.Context) {
	st, err := r.deps.Supervisor.Restart(shutdownCtx(c))
	r.lifecycle(c, st, err)
}

type redPhoneReq struct {
	Reason string `json:"reason"`
}

func (r *Router) handleRedPhone(c *gin.Context) {
	var req redPhoneReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	res, err := r.deps.Supervisor.RedPhone(shutdownCtx(c), req.Reason)
	switch {
	case errors.Is(err, manager.ErrReasonRequired):
		writeError(c, http.StatusBadRequest, err)
	case err != nil:
		writeError(c, http.StatusInternalServerError, err)
	default:
		writeJSON(c, http.StatusOK, res)
	}
}

func (r *Router) handleHealth(c *gin.Context) {
	h, err := r.deps.Gateway.Health(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	writeJSON(c, http.StatusOK, h)
}

func (r *Router) handleAuditLogs(c *gin.Context) {
	limit := gateway.DefaultAuditLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: fmt.Sprintf("invalid limit %q: must be a positive integer", s)})
			return
		}
		limit = n
	}
	logs, err := r.deps.Gateway.AuditLogs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	if logs == nil {
		logs = []gateway.AuditLogEntry{}
	}
	writeJSON(c, http.StatusOK, logs)
}

func (r *Router) handleSessionToken(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"token": r.deps.Token()})
}

func (r *Router) handleDaemonStatus(c *gin.Context) {
	st, err := r.deps.Daemon.Status(c.Request.Context())
	r.daemonResult(c, st, err)
}

type enableReq struct {
	Enabled *bool `json:"enabled"`
}

func (r *Router) handleDaemonEnable(c *gin.Context) {
	var req enableReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Enabled == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "enabled is required"})
		return
	}
	st, err := r.deps.Daemon.SetEnabled(c.Request.Context(), *req.Enabled)
	r.daemonResult(c, st, err)
}

func (r *Router) daemonOp(op func(daemon.Controller, context.Context) (daemon.Status, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := op(r.deps.Daemon, c.Request.Context())
		r.daemonResult(c, st, err)
	}
}

func (r *Router) daemonResult(c *gin.Context, st daemon.Status, err error) {
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}
