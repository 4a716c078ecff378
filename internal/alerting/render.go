package alerting

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/memlab/memwatch/internal/detection"
	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/pkg/errors"
)

const messageStyle = `
        body { font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px; }
        .container { max-width: 600px; background-color: #ffffff; padding: 20px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); margin: auto; }
        .header { background-color: {{.HeaderColor}}; color: white; text-align: center; padding: 10px; font-size: 20px; font-weight: bold; border-radius: 5px 5px 0 0; }
        .content { padding: 15px; font-size: 14px; line-height: 1.6; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { border: 1px solid #ddd; padding: 10px; text-align: left; }
        th { background-color: #f8f9fa; }
        .footer { text-align: center; font-size: 12px; color: #777; padding-top: 10px; }`

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>` + messageStyle + `
    </style>
</head>
<body>
    <div class="container">
        <div class="header">{{.Title}}</div>
        <div class="content">
            {{template "content" .}}
        </div>
        <div class="footer">
            <p>Automated Monitoring System</p>
            {{if .Host.Hostname}}<p>Host: {{.Host.Hostname}}{{if .Host.MachineId}} ({{.Host.MachineId}}){{end}}</p>{{end}}
        </div>
    </div>
</body>
</html>
{{end}}`

const highMemoryContent = `{{define "content"}}<p><strong>Process:</strong> {{.Event.Process}}</p>
            <table>
                <tr><th>Metric</th><th>Value</th></tr>
                <tr><td>Virtual Memory</td><td><strong>{{mb .Event.VirtualMb}} MB ({{pct .Event.UsagePercent}}%)</strong></td></tr>
                <tr><td>Working Set</td><td>{{mb .Event.ResidentMb}} MB</td></tr>
            </table>
            <p>Please check the system immediately.</p>{{end}}`

const crashContent = `{{define "content"}}<p>The process <strong>{{.Event.Process}}</strong> has crashed or stopped running unexpectedly.</p>
            <p>Please investigate immediately.</p>{{end}}`

var templateFuncs = template.FuncMap{
	"mb":  formatTwoDecimals,
	"pct": formatTwoDecimals,
}

var (
	highMemoryTemplate = template.Must(template.Must(
		template.New("high-memory").Funcs(templateFuncs).Parse(layoutTemplate)).Parse(highMemoryContent))
	crashTemplate = template.Must(template.Must(
		template.New("crash").Funcs(templateFuncs).Parse(layoutTemplate)).Parse(crashContent))
)

func formatTwoDecimals(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

// HostIdentity names the monitoring host in message footers.
type HostIdentity struct {
	Hostname  string
	MachineId string
}

type Message struct {
	Subject  string
	HtmlBody string
}

type templateData struct {
	Title       string
	HeaderColor template.CSS
	Event       *detection.AlertEvent
	Host        HostIdentity
}

func Render(event *detection.AlertEvent, host HostIdentity) (*Message, error) {
	if event == nil {
		return nil, internalErrors.WrappedErrRenderMessage(errors.New("nil event"))
	}

	var (
		subject string
		tmpl    *template.Template
		data    = templateData{Event: event, Host: host}
	)

	switch event.Kind {
	case detection.AlertKindHighMemory:
		subject = highMemorySubject(event.Process, event.UsagePercent)
		tmpl = highMemoryTemplate
		data.Title = "High Memory Usage Alert"
		data.HeaderColor = "#D9534F"
	case detection.AlertKindCrash:
		subject = crashSubject(event.Process)
		tmpl = crashTemplate
		data.Title = "Process Crash Alert"
		data.HeaderColor = "#FF0000"
	default:
		return nil, internalErrors.WrappedErrRenderMessage(errors.Errorf("unknown alert kind '%d'", event.Kind))
	}

	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, "layout", data); err != nil {
		return nil, internalErrors.WrappedErrRenderMessage(err)
	}

	return &Message{Subject: subject, HtmlBody: body.String()}, nil
}
