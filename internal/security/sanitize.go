package security

import "strings"

var htmlEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// Sanitize escapes HTML-significant characters in model output.
// Ampersands are left alone, so it is meant for a single pass over freshly
// generated text.
func Sanitize(text string) string {
	return htmlEscaper.Replace(text)
}
