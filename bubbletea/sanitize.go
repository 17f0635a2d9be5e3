package bubbletea

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Sanitize makes server-supplied text safe to print. Escape sequences are
// stripped, CRLF and lone CR become LF, and control characters other than
// tab and newline are dropped.
func Sanitize(s string) string {
	s = ansi.Strip(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || (r > 0x1F && r != 0x7F) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
