package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

// Template names used by the detectors.
const (
	TemplateFailedSales   = "failed_sales"
	TemplateVoidFailed    = "void_failed"
	TemplateTimeout       = "timeout"
	TemplateVoidCompleted = "void_completed"
	TemplateOffline       = "offline"
	TemplateBaselineDrop  = "baseline_drop"
)

var builtinTemplates = map[string]string{
	TemplateFailedSales: `[Alert] Repeated sale failures
Machine: {{.MachineName}} ({{.Serial}})
Partner: {{.PartnerName}}
Reason: {{.Reason}}
Last Failure: {{.FailureAt}}`,

	TemplateVoidFailed: `[Alert] Void transaction failed
Machine: {{.MachineName}} ({{.Serial}})
Partner: {{.PartnerName}}
Transaction: {{.TransactionID}}
Reason: {{.Reason}}
Failed At: {{.FailureAt}}`,

	TemplateTimeout: `[Alert] Transaction timeouts
Machine: {{.MachineName}} ({{.Serial}})
Partner: {{.PartnerName}}
Reason: {{.Reason}}
Last Timeout: {{.FailureAt}}`,

	TemplateVoidCompleted: `[Alert] Void-completed burst
Machine: {{.MachineName}} ({{.Serial}})
Partner: {{.PartnerName}}
Reason: {{.Reason}}
Last Void: {{.FailureAt}}`,

	TemplateOffline: `[Alert] Machine offline
Machine: {{.MachineName}} ({{.Serial}})
Partner: {{.PartnerName}}
Reason: {{.Reason}}
Last Activity: {{.FailureAt}}`,

	TemplateBaselineDrop: `[Alert] Hourly sales below baseline
Partner: {{.PartnerName}}
Hour: {{.Hour}}
{{range .Rows}}Machine {{.Serial}} ({{.Name}}): completed={{.Completed}} baseline={{printf "%.1f" .Baseline}} failed={{.Failed}} voidCompleted={{.VoidCompleted}} voidFailed={{.VoidFailed}}
{{end}}`,
}

// Renderer renders notification bodies from named templates.
type Renderer struct {
	tpls map[string]*template.Template
}

// NewRenderer parses the builtin template set.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{tpls: make(map[string]*template.Template)}
	for name, text := range builtinTemplates {
		if err := r.Register(name, text); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register parses and stores a template, replacing any builtin of the same
// name.
func (r *Renderer) Register(name, text string) error {
	if r == nil || r.tpls == nil {
		return errors.New("renderer: nil")
	}
	if name == "" {
		return errors.New("renderer: empty template name")
	}
	parsed, err := template.New(name).Parse(text)
	if err != nil {
		return fmt.Errorf("renderer: parse %s: %w", name, err)
	}
	r.tpls[name] = parsed
	return nil
}

// Render applies the named template to data.
func (r *Renderer) Render(name string, data any) (string, error) {
	if r == nil || r.tpls == nil {
		return "", errors.New("renderer: nil")
	}
	tpl, ok := r.tpls[name]
	if !ok {
		return "", fmt.Errorf("renderer: unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
