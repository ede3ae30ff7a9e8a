// Package render turns a stabilized bundle into markdown documents using
// embedded, versioned templates. Rendering is pure: the same bundle,
// request, and template version always produce byte-identical output,
// which is what makes cache-hit responses reproducible.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/sungjin9288/DecisionDoc-AI/internal/schema"
)

//go:embed templates
var templateFS embed.FS

// DefaultTemplateVersion is used when the config leaves the version blank.
const DefaultTemplateVersion = "v1"

// Doc is one rendered document.
type Doc struct {
	DocType  schema.DocType `json:"doc_type"`
	Markdown string         `json:"markdown"`
}

// Renderer renders bundle sections through the template set of one version.
type Renderer struct {
	version   string
	templates map[schema.DocType]*template.Template
}

// NewRenderer parses the embedded template set for a version.
func NewRenderer(version string) (*Renderer, error) {
	if strings.TrimSpace(version) == "" {
		version = DefaultTemplateVersion
	}
	funcs := template.FuncMap{
		"para":    para,
		"bullets": bullets,
		"options": optionBullets,
	}
	templates := make(map[schema.DocType]*template.Template, len(schema.AllDocTypes()))
	for _, dt := range schema.AllDocTypes() {
		name := fmt.Sprintf("%s.md.tmpl", dt)
		path := fmt.Sprintf("templates/%s/%s", version, name)
		data, err := templateFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", path, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", path, err)
		}
		templates[dt] = tmpl
	}
	return &Renderer{version: version, templates: templates}, nil
}

// Version returns the template version this renderer serves.
func (r *Renderer) Version() string {
	return r.version
}

// Render produces one document. The template context is the request fields
// overlaid with the bundle section fields; on a key collision (for example
// "assumptions" in an ADR) the bundle wins.
func (r *Renderer) Render(req *schema.GenerateRequest, b *schema.Bundle, dt schema.DocType) (string, error) {
	tmpl, ok := r.templates[dt]
	if !ok {
		return "", fmt.Errorf("no template for doc type %q", dt)
	}
	context := map[string]any{
		"title":       req.Title,
		"goal":        req.Goal,
		"context":     req.Context,
		"constraints": req.Constraints,
		"priority":    req.Priority,
		"audience":    req.Audience,
	}
	for key, value := range b.SectionFields(dt) {
		context[key] = value
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("render %s: %w", dt, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// RenderAll renders every requested doc type in request order.
func (r *Renderer) RenderAll(req *schema.GenerateRequest, b *schema.Bundle) ([]Doc, error) {
	docs := make([]Doc, 0, len(req.DocTypes))
	for _, dt := range req.DocTypes {
		markdown, err := r.Render(req, b, dt)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Doc{DocType: dt, Markdown: markdown})
	}
	return docs, nil
}

// para renders a narrative field, substituting a placeholder paragraph for
// blank values so stabilized-empty bundles still produce readable sections.
func para(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified."
	}
	return strings.TrimSpace(s)
}

// bullets renders a list field as markdown bullets with a placeholder when
// the list is empty.
func bullets(items []string) string {
	lines := bulletLines(items)
	if len(lines) == 0 {
		lines = []string{"- Not specified."}
	}
	return strings.Join(lines, "\n")
}

// optionBullets renders the ADR options list. A fully blank list is
// scaffolded with two explicit placeholders so stabilized-empty bundles
// produce a structurally complete record. A partially filled list is left
// alone; a one-option ADR is an authoring problem the validator must see.
func optionBullets(items []string) string {
	lines := bulletLines(items)
	if len(lines) == 0 {
		lines = []string{
			"- Option A: to be evaluated during review.",
			"- Option B: to be evaluated during review.",
		}
	}
	return strings.Join(lines, "\n")
}

func bulletLines(items []string) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			lines = append(lines, "- "+s)
		}
	}
	return lines
}
