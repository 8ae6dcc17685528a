package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"/":       "",
		"  ":      "",
		"api":     "/api",
		"/api/":   "/api",
		"/v1/api": "/v1/api",
		" /x// ":  "/x",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeBase(in), "input %q", in)
	}
}
