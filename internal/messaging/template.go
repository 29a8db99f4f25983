package messaging

import (
	"bytes"
	"fmt"
	"text/template"
)

// RenderTemplate compiles text with strict missing-key semantics. Reminder
// bodies are rendered with the template-variable map before sending as plain
// text when the provider has no server-side templates.
func RenderTemplate(name, tmpl string, vars map[string]string) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("messaging: template text required")
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("messaging: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("messaging: execute template: %w", err)
	}
	return buf.String(), nil
}
