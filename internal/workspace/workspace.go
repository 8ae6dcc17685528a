package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
)

// RootEnv overrides the resolved workspace root.
const RootEnv = "MAJORCLAW_WORKSPACE_ROOT"

// GatewayPackage is the pnpm filter that selects the gateway workspace package.
const GatewayPackage = "@majorclaw/gateway"

// pnpmCandidates lists well-known install locations checked after the
// workspace-local binary.
var pnpmCandidates = []string{
	"/opt/homebrew/bin/pnpm",
	"/usr/local/bin/pnpm",
	"/usr/bin/pnpm",
}

// Root returns the project root the gateway runs in.
// MAJORCLAW_WORKSPACE_ROOT wins; otherwise the root is the parent of the
// directory holding the running executable (<root>/bin/gatewayd).
func Root() string {
	if v := os.Getenv(RootEnv); v != "" {
		return v
	}
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(filepath.Dir(exe))
}

// ResolvePnpm finds the pnpm executable for root. The workspace-local
// node_modules binary is preferred, then the well-known system locations.
// When nothing is found the bare name is returned so exec falls back to PATH.
func ResolvePnpm(root string) string {
	local := filepath.Join(root, "node_modules", ".bin", "pnpm")
	if isFile(local) {
		return local
	}
	for _, c := range pnpmCandidates {
		if isFile(c) {
			return c
		}
	}
	if p, err := exec.LookPath("pnpm"); err == nil {
		return p
	}
	return "pnpm"
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
