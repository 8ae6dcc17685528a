package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	processCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway_process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the gateway child.",
		},
	)
	processMemoryRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway_process",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the gateway child.",
		},
	)
	processNumThreads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway_process",
			Name:      "threads",
			Help:      "Thread count of the gateway child.",
		},
	)
)

// ResourceUsage is one sample of the gateway child's resource use.
type ResourceUsage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpuPercent"`
	MemoryRSS  uint64    `json:"memoryRss"`
	MemoryMB   float64   `json:"memoryMb"`
	NumThreads int32     `json:"numThreads"`
	SampledAt  time.Time `json:"sampledAt"`
}

// Sample reads CPU, memory and thread counts for pid.
func Sample(pid int) (ResourceUsage, error) {
	if pid <= 0 {
		return ResourceUsage{}, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return ResourceUsage{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	// CPUPercent and NumThreads are not available everywhere; zero is fine.
	cpu, _ := proc.CPUPercent()
	threads, _ := proc.NumThreads()
	return ResourceUsage{
		PID:        int32(pid),
		CPUPercent: cpu,
		MemoryRSS:  mem.RSS,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		NumThreads: threads,
		SampledAt:  time.Now(),
	}, nil
}

// ProcessMetricsConfig configures periodic sampling of the gateway child.
type ProcessMetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// ProcessMetricsCollector samples the gateway child on an interval, exports
// gauges and keeps the latest sample for status queries.
type ProcessMetricsCollector struct {
	interval time.Duration
	log      *slog.Logger

	mu     sync.RWMutex
	latest *ResourceUsage
}

// NewProcessMetricsCollector creates a collector; a zero interval means 5s.
func NewProcessMetricsCollector(cfg ProcessMetricsConfig, log *slog.Logger) *ProcessMetricsCollector {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProcessMetricsCollector{interval: cfg.Interval, log: log}
}

// Run samples pidFn() every interval until ctx is done. A zero pid clears
// the gauges and the cached sample.
func (c *ProcessMetricsCollector) Run(ctx context.Context, pidFn func() int) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		c.collect(pidFn())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *ProcessMetricsCollector) collect(pid int) {
	if pid <= 0 {
		c.store(nil)
		return
	}
	u, err := Sample(pid)
	if err != nil {
		c.log.Debug("gateway resource sample failed", "pid", pid, "error", err)
		c.store(nil)
		return
	}
	c.store(&u)
}

func (c *ProcessMetricsCollector) store(u *ResourceUsage) {
	c.mu.Lock()
	c.latest = u
	c.mu.Unlock()
	if !regOK.Load() {
		return
	}
	if u == nil {
		processCPUPercent.Set(0)
		processMemoryRSS.Set(0)
		processNumThreads.Set(0)
		return
	}
	processCPUPercent.Set(u.CPUPercent)
	processMemoryRSS.Set(float64(u.MemoryRSS))
	processNumThreads.Set(float64(u.NumThreads))
}

// Latest returns the most recent sample, if any.
func (c *ProcessMetricsCollector) Latest() (ResourceUsage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return ResourceUsage{}, false
	}
	return *c.latest, true
}
