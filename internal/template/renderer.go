// Package template renders the fixed set of named email templates by
// substituting {{token}} placeholders.
package template

import (
	"embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrTemplateNotFound is returned for an unknown template name. Template
// names are fixed constants chosen by the dispatcher, so hitting this in
// production is a configuration error, not bad user input.
var ErrTemplateNotFound = errors.New("template not found")

// Known template names.
const (
	Base                 = "base"
	Welcome              = "welcome"
	PropertyNotification = "property-notification"
	PasswordRecovery     = "password-recovery"
)

// Renderer loads the embedded template set once and substitutes
// variables on demand. It is safe for concurrent use.
type Renderer struct {
	sources map[string]string
}

// NewRenderer loads every embedded template. It fails only if the
// embedded set is incomplete, which would be a build defect.
func NewRenderer() (*Renderer, error) {
	sources := make(map[string]string)
	for _, name := range []string{Base, Welcome, PropertyNotification, PasswordRecovery} {
		data, err := templateFS.ReadFile("templates/" + name + ".html")
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", name, err)
		}
		sources[name] = string(data)
	}
	return &Renderer{sources: sources}, nil
}

// Render produces the HTML for the named template with every
// {{ key }} occurrence replaced by vars[key]. Whitespace around the key
// inside the braces is ignored. Tokens without a matching key are left
// verbatim in the output.
func (r *Renderer) Render(name string, vars map[string]string) (string, error) {
	src, ok := r.sources[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return substitute(src, vars), nil
}

// substitute resolves tokens in a single pass over the source.
// Replacement values are written straight to the output and never
// re-scanned, so a value containing {{...}}-shaped text stays literal.
func substitute(src string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(src))

	for {
		open := strings.Index(src, "{{")
		if open < 0 {
			b.WriteString(src)
			break
		}
		b.WriteString(src[:open])
		src = src[open:]

		end := strings.Index(src, "}}")
		if end < 0 {
			b.WriteString(src)
			break
		}

		token := src[:end+2]
		key := strings.TrimSpace(src[2:end])
		if value, ok := vars[key]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(token)
		}
		src = src[end+2:]
	}

	return b.String()
}
