package session

import (
	"html"
	"unicode/utf8"

	"github.com/mtgturn/turnserver/internal/apperr"
)

// SanitizeText HTML-entity-encodes & < > " ' while preserving all
// other Unicode (emoji, non-ASCII letters), and caps length in runes.
// Mirrors the teacher's html.EscapeString-based sanitizeText/
// sanitizeName helpers, generalized to a configurable cap.
func SanitizeText(s string, maxLen int) (string, error) {
	if !utf8.ValidString(s) {
		return "", apperr.Validation("invalid text encoding")
	}
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return html.EscapeString(string(runes)), nil
}

// SanitizeName validates and sanitizes a display name (player or
// session), capped at MaxNameLen.
func SanitizeName(s string) (string, error) {
	return SanitizeText(s, MaxNameLen)
}
