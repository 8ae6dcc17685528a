package daemon

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"text/template"
)

var funcs = template.FuncMap{
	"xml": func(s string) (string, error) {
		var b bytes.Buffer
		if err := xml.EscapeText(&b, []byte(s)); err != nil {
			return "", err
		}
		return b.String(), nil
	},
}

var plistTemplate = template.Must(template.New("plist").Funcs(funcs).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key>
  <string>{{xml .Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{xml .Pnpm}}</string>
    <string>--filter</string>
    <string>{{xml .Package}}</string>
    <string>start</string>
  </array>
  <key>EnvironmentVariables</key>
  <dict>
    <key>{{.PortEnv}}</key>
    <string>{{.Port}}</string>
  </dict>
  <key>WorkingDirectory</key>
  <string>{{xml .WorkDir}}</string>
  <key>RunAtLoad</key>
  <true/>
  <key>KeepAlive</key>
  <true/>
  <key>StandardOutPath</key>
  <string>{{xml .StdoutPath}}</string>
  <key>StandardErrorPath</key>
  <string>{{xml .StderrPath}}</string>
</dict>
</plist>
`))

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Major Claw Gateway
After=network.target

[Service]
Type=simple
WorkingDirectory={{.WorkDir}}
ExecStart={{.ExecStart}} --filter {{.Package}} start
Restart=always
RestartSec=3
Environment=NODE_ENV=production
Environment={{.PortEnv}}={{.Port}}

[Install]
WantedBy=default.target
`))

type plistData struct {
	Label      string
	Pnpm       string
	Package    string
	WorkDir    string
	PortEnv    string
	Port       int
	StdoutPath string
	StderrPath string
}

type unitData struct {
	WorkDir   string
	ExecStart string
	Package   string
	PortEnv   string
	Port      int
}

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s template: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}
