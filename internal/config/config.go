package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/logger"
	"github.com/loykin/gatewayd/internal/manager"
	"github.com/loykin/gatewayd/internal/metrics"
)

// EnvPrefix namespaces environment overrides, e.g. GATEWAYD_GATEWAY_PORT.
const EnvPrefix = "GATEWAYD"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level TOML structure.
type Config struct {
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	Server     ServerConfig     `mapstructure:"server"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	History    HistoryConfig    `mapstructure:"history"`
	Log        logger.Config    `mapstructure:"log"`
}

// GatewayConfig describes the child process and how to reach it.
type GatewayConfig struct {
	Host           string            `mapstructure:"host"`
	Port           int               `mapstructure:"port"`
	Command        string            `mapstructure:"command"`
	Args           []string          `mapstructure:"args"`
	WorkDir        string            `mapstructure:"workdir"`
	Env            []string          `mapstructure:"env"`
	EnvFiles       []string          `mapstructure:"env_files"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	Log            logger.FileConfig `mapstructure:"log"`
}

type SupervisorConfig struct {
	AutoStart        bool          `mapstructure:"auto_start"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	StopGraceful     time.Duration `mapstructure:"stop_graceful"`
	StopKill         time.Duration `mapstructure:"stop_kill"`
	RedPhoneGraceful time.Duration `mapstructure:"red_phone_graceful"`
	RedPhoneKill     time.Duration `mapstructure:"red_phone_kill"`
}

type DaemonConfig struct {
	Label          string        `mapstructure:"label"`
	Unit           string        `mapstructure:"unit"`
	Service        string        `mapstructure:"service"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen mounts
// /metrics on the control API listener.
type MetricsConfig struct {
	Enabled        bool                         `mapstructure:"enabled"`
	Listen         string                       `mapstructure:"listen"`
	ProcessMetrics metrics.ProcessMetricsConfig `mapstructure:"process_metrics"`
}

// HistoryConfig lists history sink DSNs (see history/factory).
type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"`
	Rate    float64  `mapstructure:"rate"`
	Buffer  int      `mapstructure:"buffer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "127.0.0.1")
	v.SetDefault("gateway.port", gateway.DefaultPort)
	v.SetDefault("gateway.command", "")
	v.SetDefault("gateway.args", []string{})
	v.SetDefault("gateway.workdir", "")
	v.SetDefault("gateway.request_timeout", 5*time.Second)

	v.SetDefault("supervisor.auto_start", true)
	v.SetDefault("supervisor.watchdog_interval", manager.DefaultWatchdogInterval)
	v.SetDefault("supervisor.poll_interval", manager.DefaultPollInterval)
	v.SetDefault("supervisor.stop_graceful", manager.DefaultStopGraceful)
	v.SetDefault("supervisor.stop_kill", manager.DefaultStopKill)
	v.SetDefault("supervisor.red_phone_graceful", manager.DefaultRedPhoneGraceful)
	v.SetDefault("supervisor.red_phone_kill", manager.DefaultRedPhoneKill)

	v.SetDefault("daemon.label", daemon.DefaultLabel)
	v.SetDefault("daemon.unit", daemon.DefaultUnit)
	v.SetDefault("daemon.service", daemon.DefaultService)
	v.SetDefault("daemon.command_timeout", daemon.DefaultCommandTimeout)

	v.SetDefault("server.listen", "127.0.0.1:4456")
	v.SetDefault("server.base_path", "/api")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.process_metrics.enabled", true)
	v.SetDefault("metrics.process_metrics.interval", 5*time.Second)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
	v.SetDefault("history.rate", history.DefaultRate)
	v.SetDefault("history.buffer", history.DefaultBuffer)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)
}

// Load reads a TOML file over the defaults. An empty path yields the
// defaults alone. GATEWAYD_* environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ranges that would otherwise surface as runtime failures.
func (c *Config) Validate() error {
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("%w: gateway.port %d out of range", ErrInvalid, c.Gateway.Port)
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"gateway.request_timeout", c.Gateway.RequestTimeout},
		{"supervisor.watchdog_interval", c.Supervisor.WatchdogInterval},
		{"supervisor.poll_interval", c.Supervisor.PollInterval},
		{"supervisor.stop_graceful", c.Supervisor.StopGraceful},
		{"supervisor.stop_kill", c.Supervisor.StopKill},
		{"supervisor.red_phone_graceful", c.Supervisor.RedPhoneGraceful},
		{"supervisor.red_phone_kill", c.Supervisor.RedPhoneKill},
		{"daemon.command_timeout", c.Daemon.CommandTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, d.key)
		}
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("%w: server.listen is required", ErrInvalid)
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("%w: server.base_path must start with /", ErrInvalid)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", logger.FormatText, logger.FormatJSON, logger.FormatColor:
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if c.History.Enabled && len(c.History.Sinks) == 0 {
		return fmt.Errorf("%w: history.enabled requires at least one sink", ErrInvalid)
	}
	if c.History.Rate < 0 || c.History.Buffer < 0 {
		return fmt.Errorf("%w: history.rate and history.buffer must not be negative", ErrInvalid)
	}
	return nil
}

// GatewayURL is the base URL of the gateway's HTTP API.
func (c *Config) GatewayURL() string {
	return gateway.BaseURL(c.Gateway.Host, c.Gateway.Port)
}

// Timeouts maps the supervisor section onto manager timeouts.
func (c *Config) Timeouts() manager.Timeouts {
	s := c.Supervisor
	return manager.Timeouts{
		Poll:             s.PollInterval,
		StopGraceful:     s.StopGraceful,
		StopKill:         s.StopKill,
		RedPhoneGraceful: s.RedPhoneGraceful,
		RedPhoneKill:     s.RedPhoneKill,
	}
}

// DaemonOptions maps the daemon section onto controller options rooted at root.
func (c *Config) DaemonOptions(root string) daemon.Options {
	return daemon.Options{
		Label:          c.Daemon.Label,
		Unit:           c.Daemon.Unit,
		Service:        c.Daemon.Service,
		CommandTimeout: c.Daemon.CommandTimeout,
		Port:           c.Gateway.Port,
		WorkspaceRoot:  root,
	}
}
