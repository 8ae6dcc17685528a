package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/gatewayd/internal/logger"
	"github.com/loykin/gatewayd/internal/process"
	"github.com/loykin/gatewayd/internal/workspace"
)

// DevServerArgs run the gateway package's development server through pnpm.
var DevServerArgs = []string{"--filter", workspace.GatewayPackage, "dev:server"}

// WorkspaceRoot is gateway.workdir when set, otherwise the resolved root.
func (c *Config) WorkspaceRoot() string {
	if c.Gateway.WorkDir != "" {
		return c.Gateway.WorkDir
	}
	return workspace.Root()
}

// GatewaySpec builds the child process spec. Without a configured command
// the workspace's pnpm runs the gateway dev server.
func (c *Config) GatewaySpec() (process.Spec, error) {
	root := c.WorkspaceRoot()
	env, err := c.GatewayEnv()
	if err != nil {
		return process.Spec{}, err
	}
	spec := process.Spec{
		Name:    "gateway",
		Command: c.Gateway.Command,
		Args:    c.Gateway.Args,
		WorkDir: root,
		Env:     env,
		Log:     logger.Config{File: c.Gateway.Log},
	}
	if strings.TrimSpace(spec.Command) == "" {
		spec.Command = workspace.ResolvePnpm(root)
		if len(spec.Args) == 0 {
			spec.Args = append([]string(nil), DevServerArgs...)
		}
	}
	return spec, nil
}

// GatewayEnv merges env_files in order and then the env list; later keys
// win. ${VAR} references are expanded against the merged set and the
// process environment.
func (c *Config) GatewayEnv() ([]string, error) {
	m := make(map[string]string)
	var order []string
	set := func(k, v string) {
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, p := range c.Gateway.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for _, kv := range pairs {
			set(kv[0], kv[1])
		}
	}
	for _, kv := range c.Gateway.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			set(kv[:i], kv[i+1:])
		}
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		// A self reference such as PATH=${PATH}:/x reads the inherited value.
		lookup := func(name string) string {
			if v, ok := m[name]; ok && name != k {
				return v
			}
			return os.Getenv(name)
		}
		out = append(out, k+"="+os.Expand(m[k], lookup))
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no
// quotes). Lines starting with # are ignored. Pairs keep file order.
func loadEnvFile(path string) ([][2]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var pairs [][2]string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			pairs = append(pairs, [2]string{strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:])})
		}
	}
	return pairs, nil
}
