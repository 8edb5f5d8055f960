package manager

import (
	"os"
	"regexp"
)

// templateVarRE matches "{{ VAR }}" with optional surrounding
// whitespace. A bare {{ VAR }} grammar where a missing variable renders
// as an empty string doesn't map onto text/template's dot-prefixed
// action syntax, so a small dedicated regexp handles it instead.
var templateVarRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// renderTemplate substitutes every {{ VAR }} occurrence in text with the
// value of the named environment variable. A missing variable renders as
// an empty string, not an error.
func renderTemplate(text string) string {
	return templateVarRE.ReplaceAllStringFunc(text, func(match string) string {
		sub := templateVarRE.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		return os.Getenv(sub[1])
	})
}
