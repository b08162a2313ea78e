package irc

import (
	"strings"
	"unicode/utf8"

	"github.com/lrstanley/girc"
)

// IsChannel returns true if target names a channel rather than a nick.
func IsChannel(target string) bool {
	return strings.HasPrefix(target, "#")
}

// ValidChannel returns true for a well formed '#' channel name.
func ValidChannel(name string) bool {
	return IsChannel(name) && girc.IsValidChannel(name)
}

// ValidNick returns true if nick is well formed and at most maxLen bytes.
func ValidNick(nick string, maxLen int) bool {
	if maxLen > 0 && len(nick) > maxLen {
		return false
	}
	return girc.IsValidNick(nick)
}

// SanitizeUser drops the bytes a username may not carry: the separators
// of a nick!user@host prefix, the delimiters of the nick history file, and
// anything at or below space. It may return "".
func SanitizeUser(name string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f || strings.ContainsRune(":,!@*", r) {
			return -1
		}
		return r
	}, name)
}

// Clip shortens s to at most n bytes without splitting a UTF-8 sequence.
func Clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Fold maps a nick or channel name to its RFC 1459 case-folded key.
func Fold(name string) string {
	return girc.ToRFC1459(name)
}

// SplitList splits a comma separated target list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
