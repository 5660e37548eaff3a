package templates

import (
	"bytes"
	"fmt"
	"html/template"

	"flexsearch-service/internal/domain/entity"
)

var searchFinished = template.Must(template.New("search_finished").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <h2>{{ .Title }}</h2>
  <p>{{ .Body }}</p>
  {{- if gt .CheapestPrice 0.0 }}
  <table cellpadding="4">
    <tr><td>Route</td><td>{{ .Origin }} &rarr; {{ .Destination }}</td></tr>
    <tr><td>Best price</td><td>{{ printf "%.0f" .CheapestPrice }} {{ .Currency }}</td></tr>
    <tr><td>You save</td><td>{{ printf "%.0f" .Savings }} {{ .Currency }}</td></tr>
  </table>
  {{- end }}
  <p style="color: #888; font-size: 12px;">Search reference {{ .JobID }}</p>
</body>
</html>
`))

// RenderSearchFinished renders the HTML body of the "search finished" mail
func RenderSearchFinished(n entity.Notification) (string, error) {
	var buf bytes.Buffer
	if err := searchFinished.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("render search finished mail: %w", err)
	}
	return buf.String(), nil
}
