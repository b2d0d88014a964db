package codegen

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Fallback produces deterministic demo output when no AI provider can be
// used. Templates are parsed once; the {% %} delimiters keep JSX braces
// literal.
type Fallback struct {
	templates *template.Template
}

type templateData struct {
	Prompt   string
	Title    string // first 50 characters of Prompt
	Tailwind bool
}

func NewFallback() (*Fallback, error) {
	tmpl, err := template.New("fallback").Delims("{%", "%}").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("codegen: parsing fallback templates: %w", err)
	}
	return &Fallback{templates: tmpl}, nil
}

// Code picks a template by language and prompt keywords. Unknown languages
// get the JavaScript template.
func (f *Fallback) Code(prompt, language, styling string) (string, error) {
	lower := strings.ToLower(prompt)
	name := strings.ToLower(language)

	switch name {
	case "html", "javascript":
		if strings.Contains(lower, "login") {
			name += "_login"
		}
	case "react":
		switch {
		case containsAny(lower, "sign up", "signup", "register"):
			name = "react_signup"
		case strings.Contains(lower, "login"):
			name = "react_login"
		}
	case "typescript", "python", "nodejs", "java", "c":
	default:
		name = "javascript"
	}

	var b strings.Builder
	data := templateData{
		Prompt:   prompt,
		Title:    truncate(prompt, 50),
		Tailwind: styling == "tailwind",
	}
	if err := f.templates.ExecuteTemplate(&b, name+".tmpl", data); err != nil {
		return "", fmt.Errorf("codegen: rendering %s fallback: %w", name, err)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (f *Fallback) Fix(code string) string {
	return "// Fixed (Demo)\n" + code
}

func (f *Fallback) Explain() string {
	return "Demo explanation. Add Gemini API key for AI explanations."
}

func (f *Fallback) Optimize(code string) string {
	return "// Optimized (Demo)\n" + code
}

func (f *Fallback) Convert(code, target string) string {
	return "// Converted to " + target + " (Demo)\n" + code
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
