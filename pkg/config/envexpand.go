package config

import (
	"os"
	"strings"
	"text/template"
)

// expandEnv substitutes {{.VAR}} placeholders in configuration text with
// environment variable values. Go template syntax is used instead of ${VAR}
// so that literal dollar signs in regex patterns and shell snippets survive
// untouched. Missing variables expand to the empty string. If the text fails
// to parse or execute as a template, the original text is returned unchanged.
func expandEnv(text string) string {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(text)
	if err != nil {
		return text
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, envMap()); err != nil {
		return text
	}
	return sb.String()
}

// envMap converts the process environment into a template data map.
func envMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}
	return env
}
