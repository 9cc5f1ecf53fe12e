package dialog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"
)

const maxTemplateOutput = 64 * 1024

// Generator produces text for outbound activities from a template and the
// memory scopes of the calling dialog.
type Generator interface {
	Generate(ctx context.Context, tmpl string, data map[string]any) (string, error)
}

// TemplateGenerator renders Go text/template templates. Memory scopes are
// the template data, so "{{.dialog.name}}" reads dialog memory. Parsed
// templates are cached by text.
type TemplateGenerator struct {
	cache sync.Map
}

var defaultGenerator Generator = &TemplateGenerator{}

// NewTemplateGenerator creates a generator with an empty cache.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Generate renders tmpl. Text without template actions is returned as is.
func (g *TemplateGenerator) Generate(_ context.Context, tmpl string, data map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	var t *template.Template
	if cached, ok := g.cache.Load(tmpl); ok {
		t = cached.(*template.Template)
	} else {
		var err error
		t, err = template.New("").Option("missingkey=zero").Parse(tmpl)
		if err != nil {
			return "", err
		}
		g.cache.Store(tmpl, t)
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxTemplateOutput}
	if err := t.Execute(lw, data); err != nil {
		return "", err
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Generate renders tmpl with the context's generator and memory scopes.
func (dc *Context) Generate(ctx context.Context, tmpl string) (string, error) {
	return dc.Turn.generator().Generate(ctx, tmpl, dc.Scopes())
}

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("template output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}
