package transcript

import (
	"strings"
	"unicode/utf8"
)

// Condense renders the last maxMessages messages as "[ROLE] text" blocks
// and cuts the result to at most maxChars bytes on a rune boundary.
// Non-positive limits disable the corresponding cap.
func Condense(msgs []Message, maxMessages, maxChars int) string {
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	var b strings.Builder
	for _, m := range msgs {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString("] ")
		b.WriteString(m.Text)
		b.WriteString("\n\n")
	}
	out := strings.TrimSpace(b.String())

	if maxChars > 0 && len(out) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
	}
	return out
}
