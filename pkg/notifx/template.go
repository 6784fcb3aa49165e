package notifx

import (
	"bytes"
	"html/template"
)

// TemplateRegistry holds the parsed credential-setup mail templates. The set
// is fixed at construction, so rendering needs no locking.
type TemplateRegistry struct {
	templates map[string]*template.Template
}

// NewTemplateRegistry parses every source template, failing on the first bad
// one.
func NewTemplateRegistry(sources map[string]string) (*TemplateRegistry, error) {
	templates := make(map[string]*template.Template, len(sources))
	for name, src := range sources {
		t, err := template.New(name).Parse(src)
		if err != nil {
			return nil, notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
		}
		templates[name] = t
	}

	return &TemplateRegistry{templates: templates}, nil
}

// Render executes a named template with the given data and returns the result.
func (r *TemplateRegistry) Render(name string, data interface{}) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}

	return buf.String(), nil
}
