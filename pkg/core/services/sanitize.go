package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxFieldLength caps free-text opportunity and profile fields, in runes
	MaxFieldLength = 500
	// MaxMessageLength caps chat message content, in runes
	MaxMessageLength = 1000
)

// strictPolicy strips every tag and drops script/style bodies. A policy is
// safe for concurrent use once built.
var strictPolicy = bluemonday.StrictPolicy()

// angleEscaper keeps decoded text from ever carrying a raw tag bracket
var angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// SanitizeText reduces user input to trimmed plain text of at most maxRunes
// runes. Tags are removed; angle brackets left over, including ones that
// arrived entity-encoded, are stored as &lt; and &gt;.
func SanitizeText(input string, maxRunes int) string {
	text := html.UnescapeString(strictPolicy.Sanitize(input))
	text = strings.TrimSpace(text)

	if maxRunes > 0 {
		runes := []rune(text)
		if len(runes) > maxRunes {
			text = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return angleEscaper.Replace(text)
}
