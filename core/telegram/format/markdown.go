// Package format holds small text helpers for outbound Telegram messages.
package format

import "strings"

var mdEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"`", "\\`",
)

// EscapeMD escapes legacy Markdown specials so user-provided values such as
// usernames cannot break message formatting.
func EscapeMD(text string) string {
	return mdEscaper.Replace(text)
}
