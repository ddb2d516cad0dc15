package profile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// TemplateResolver serves one locally configured business. Instructions are
// rendered from a text/template with .BusinessName and .KnowledgeBase, or
// from the built-in prompt when no template is given.
type TemplateResolver struct {
	businessName  string
	knowledgeBase string
	tmpl          *template.Template
}

// NewTemplateResolver creates a resolver. templateFile may be empty.
func NewTemplateResolver(businessName, knowledgeBase, templateFile string) (*TemplateResolver, error) {
	if strings.TrimSpace(businessName) == "" {
		businessName = "the company"
	}
	if strings.TrimSpace(knowledgeBase) == "" {
		knowledgeBase = "No information provided."
	}
	r := &TemplateResolver{businessName: businessName, knowledgeBase: knowledgeBase}

	if templateFile != "" {
		data, err := os.ReadFile(templateFile)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		tmpl, err := template.New("prompt").Option("missingkey=error").Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template: %w", err)
		}
		r.tmpl = tmpl
	}
	return r, nil
}

// Resolve implements Resolver. Every session key maps to the configured
// business; the tenant id is still derived from the key.
func (r *TemplateResolver) Resolve(ctx context.Context, sessionKey string) (Profile, error) {
	tenantID, err := TenantKey(sessionKey)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{TenantID: tenantID, BusinessName: r.businessName, KnowledgeBase: r.knowledgeBase}
	if r.tmpl != nil {
		var b strings.Builder
		if err := r.tmpl.Execute(&b, p); err != nil {
			return Profile{}, fmt.Errorf("render prompt template: %w", err)
		}
		p.Instructions = b.String()
	}
	return p, nil
}
