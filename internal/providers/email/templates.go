package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	parseOnce sync.Once
	parsed    *template.Template
	parseErr  error
)

var defaultSubjects = map[string]string{
	"payment_success": "Pembayaran Anda berhasil",
	"event_ticket":    "Tiket event Anda",
	"credit_topup":    "Top up kredit berhasil",
}

func templates() (*template.Template, error) {
	parseOnce.Do(func() {
		parsed, parseErr = template.ParseFS(templateFS, "templates/*.html")
	})
	return parsed, parseErr
}

// Render executes the named embedded template. The subject comes from
// data["subject"] when set, else the template default.
func Render(name string, data map[string]any) (string, string, error) {
	tmpl, err := templates()
	if err != nil {
		return "", "", fmt.Errorf("parse templates: %w", err)
	}
	if tmpl.Lookup(name+".html") == nil {
		return "", "", fmt.Errorf("unknown template %q", name)
	}

	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, name+".html", data); err != nil {
		return "", "", fmt.Errorf("execute template: %w", err)
	}

	subject := defaultSubjects[name]
	if subj, ok := data["subject"].(string); ok && subj != "" {
		subject = subj
	}
	if subject == "" {
		subject = "Notifikasi dari Eksporyuk"
	}
	return subject, body.String(), nil
}
