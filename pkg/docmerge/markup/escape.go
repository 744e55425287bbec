package markup

import "strings"

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeText makes s safe to splice into XML character data or an attribute value.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}
