package session

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// TokenEnv carries the shared session token to the gateway process and to
// anything else launched from this process.
const TokenEnv = "MAJORCLAW_GATEWAY_SESSION_TOKEN"

// Header is the request header the gateway checks the token against.
const Header = "x-session-token"

var (
	once  sync.Once
	token string
)

// Token returns the process-wide session token. The first call adopts a
// non-blank value from the environment or generates mc-<pid>-<nanos> and
// exports it; every later call returns the same value.
func Token() string {
	once.Do(func() {
		token = resolve(os.Getenv(TokenEnv), os.Getpid(), time.Now())
		_ = os.Setenv(TokenEnv, token)
	})
	return token
}

func resolve(existing string, pid int, now time.Time) string {
	if strings.TrimSpace(existing) != "" {
		return existing
	}
	return fmt.Sprintf("mc-%d-%d", pid, now.UnixNano())
}
