package main

import "time"

// GlobalFlags are persistent across every subcommand.
type GlobalFlags struct {
	ConfigPath string
	// Control API connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

type RedPhoneFlags struct {
	Reason string
}

type AuditLogFlags struct {
	Limit int
}

type StatusFlags struct {
	JSON bool
}
