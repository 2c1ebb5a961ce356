package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"time"
)

// WriteCSV menulis entry sebagai CSV dengan header tetap.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "timestamp", "principal_id", "role", "resource_type", "resource_id", "action", "authorized", "reason", "session_id", "ip_address", "hash"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.PrincipalID,
			e.Role,
			e.ResourceType,
			e.ResourceID,
			e.Action,
			strconv.FormatBool(e.Authorized),
			e.Reason,
			e.SessionID,
			e.IPAddress,
			e.Hash,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

var exportTemplate = template.Must(template.New("audit-export").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Authorization Audit Log</title>
<style>
body { font-family: sans-serif; font-size: 11px; }
h1 { font-size: 16px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 3px 5px; text-align: left; }
th { background: #eee; }
.denied { color: #a00; }
</style>
</head>
<body>
<h1>Authorization Audit Log</h1>
<p>Generated at {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}{{if .HasWindow}}, window {{.From.Format "2006-01-02"}} to {{.To.Format "2006-01-02"}}{{end}}. {{len .Rows}} records.</p>
<table>
<tr><th>Timestamp</th><th>Principal</th><th>Role</th><th>Resource</th><th>Action</th><th>Decision</th><th>Reason</th></tr>
{{range .Rows}}<tr>
<td>{{.Timestamp.Format "2006-01-02 15:04:05"}}</td>
<td>{{.PrincipalID}}</td>
<td>{{.Role}}</td>
<td>{{.ResourceType}}/{{.ResourceID}}</td>
<td>{{.Action}}</td>
{{if .Authorized}}<td>granted</td>{{else}}<td class="denied">denied</td>{{end}}
<td>{{.Reason}}</td>
</tr>
{{end}}</table>
</body>
</html>`))

type exportView struct {
	GeneratedAt time.Time
	HasWindow   bool
	From        time.Time
	To          time.Time
	Rows        []Entry
}

// RenderHTML membangun dokumen HTML untuk dirender menjadi PDF.
func RenderHTML(filters TimelineFilters, entries []Entry, generatedAt time.Time) (string, error) {
	view := exportView{
		GeneratedAt: generatedAt,
		HasWindow:   !filters.From.IsZero() && !filters.To.IsZero(),
		From:        filters.From,
		To:          filters.To,
		Rows:        entries,
	}
	var buf bytes.Buffer
	if err := exportTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("audit: render export html: %w", err)
	}
	return buf.String(), nil
}
