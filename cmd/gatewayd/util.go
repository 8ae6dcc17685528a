package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/pkg/client"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	offColor  = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
	nameColor = color.New(color.FgCyan)
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func printStatus(w io.Writer, st client.Status) {
	if !st.Running {
		_, _ = fmt.Fprintf(w, "%s %s\n", nameColor.Sprint("gateway"), offColor.Sprint("stopped"))
		_, _ = fmt.Fprintf(w, "  port      %d\n", st.Port)
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", nameColor.Sprint("gateway"), okColor.Sprint("running"))
	_, _ = fmt.Fprintf(w, "  pid       %d\n", st.PID)
	_, _ = fmt.Fprintf(w, "  port      %d\n", st.Port)
	if st.StartedAt != nil {
		up := time.Since(*st.StartedAt).Truncate(time.Second)
		_, _ = fmt.Fprintf(w, "  started   %s %s\n", st.StartedAt.Local().Format(time.RFC3339), dimColor.Sprintf("(up %s)", up))
	}
	if r := st.Resources; r != nil {
		_, _ = fmt.Fprintf(w, "  cpu       %.1f%%\n", r.CPUPercent)
		_, _ = fmt.Fprintf(w, "  memory    %.1f MB\n", r.MemoryMB)
		_, _ = fmt.Fprintf(w, "  threads   %d\n", r.NumThreads)
	}
}

func printRedPhone(w io.Writer, res client.RedPhoneResult) {
	_, _ = fmt.Fprintf(w, "%s gateway %s at %s\n", errColor.Sprint("RED PHONE"), res.Status, res.Timestamp)
	_, _ = fmt.Fprintf(w, "  reason    %s\n", res.Reason)
	if res.Audited {
		id := ""
		if res.AuditLog != nil {
			id = res.AuditLog.ID
		}
		_, _ = fmt.Fprintf(w, "  audited   %s %s\n", okColor.Sprint("yes"), dimColor.Sprint(id))
	} else {
		_, _ = fmt.Fprintf(w, "  audited   %s\n", offColor.Sprint("no (gateway unreachable)"))
	}
}

func printDaemonStatus(w io.Writer, st daemon.Status) {
	if !st.Supported {
		_, _ = fmt.Fprintf(w, "%s %s\n", nameColor.Sprint(st.Platform), offColor.Sprint("unsupported"))
		_, _ = fmt.Fprintf(w, "  %s\n", st.Message)
		return
	}
	state := func(b bool, yes, no string) string {
		if b {
			return okColor.Sprint(yes)
		}
		return offColor.Sprint(no)
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", nameColor.Sprint(st.ServiceLabel), dimColor.Sprint(st.Platform))
	_, _ = fmt.Fprintf(w, "  enabled   %s\n", state(st.Enabled, "yes", "no"))
	_, _ = fmt.Fprintf(w, "  running   %s\n", state(st.Running, "yes", "no"))
	_, _ = fmt.Fprintf(w, "  path      %s\n", st.ServicePath)
	if st.LogHint != "" {
		_, _ = fmt.Fprintf(w, "  logs      %s\n", st.LogHint)
	}
	if st.LastError != "" {
		_, _ = fmt.Fprintf(w, "  error     %s\n", errColor.Sprint(st.LastError))
	}
	if st.Message != "" {
		_, _ = fmt.Fprintf(w, "  %s\n", st.Message)
	}
}
