package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatewayd"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	gatewayStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "starts_total",
			Help:      "Number of gateway processes spawned.",
		},
	)
	gatewayStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "stops_total",
			Help:      "Number of completed shutdowns by actor and whether the kill stage ran.",
		}, []string{"actor", "escalated"},
	)
	gatewayKills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "kills_total",
			Help:      "Number of forced kills after the graceful window elapsed.",
		},
	)
	gatewayExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "unexpected_exits_total",
			Help:      "Number of recorded handles found already exited by a probe.",
		},
	)
	gatewayRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "running",
			Help:      "1 while a live gateway handle is recorded.",
		},
	)
	shutdownDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "shutdown_duration_seconds",
			Help:      "Time from detach to reap during a shutdown.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 10, 15},
		}, []string{"actor"},
	)
	watchdogTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "ticks_total",
			Help:      "Watchdog ticks by outcome (skipped, healthy, respawned, error).",
		}, []string{"outcome"},
	)
	redPhone = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "red_phone",
			Name:      "total",
			Help:      "Emergency shutdowns by whether the gateway confirmed an audit record.",
		}, []string{"audited"},
	)
	daemonOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "operations_total",
			Help:      "Daemon controller operations by platform, operation and result.",
		}, []string{"platform", "op", "result"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events dropped because the dispatch buffer was full.",
		},
	)
	historyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "send_failures_total",
			Help:      "History sink send failures.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		gatewayStarts, gatewayStops, gatewayKills, gatewayExits, gatewayRunning, shutdownDuration,
		watchdogTicks, redPhone, daemonOps, historyDropped, historyFailures,
		processCPUPercent, processMemoryRSS, processNumThreads,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has succeeded.

func IncStart() {
	if regOK.Load() {
		gatewayStarts.Inc()
	}
}

func IncStop(actor string, escalated bool) {
	if regOK.Load() {
		gatewayStops.WithLabelValues(actor, strconv.FormatBool(escalated)).Inc()
	}
}

func IncKill() {
	if regOK.Load() {
		gatewayKills.Inc()
	}
}

func IncUnexpectedExit() {
	if regOK.Load() {
		gatewayExits.Inc()
	}
}

func SetRunning(running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		gatewayRunning.Set(v)
	}
}

func ObserveShutdown(actor string, seconds float64) {
	if regOK.Load() {
		shutdownDuration.WithLabelValues(actor).Observe(seconds)
	}
}

func IncWatchdogTick(outcome string) {
	if regOK.Load() {
		watchdogTicks.WithLabelValues(outcome).Inc()
	}
}

func IncRedPhone(audited bool) {
	if regOK.Load() {
		redPhone.WithLabelValues(strconv.FormatBool(audited)).Inc()
	}
}

func IncDaemonOp(platform, op string, err error) {
	if regOK.Load() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		daemonOps.WithLabelValues(platform, op, result).Inc()
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}

func IncHistoryFailure() {
	if regOK.Load() {
		historyFailures.Inc()
	}
}
