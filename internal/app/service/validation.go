package service

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	customURLPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	discordInvitePattern = regexp.MustCompile(`^https://discord\.gg/[A-Za-z0-9]+$`)
	inviteCodePattern    = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
)

// ValidCustomURL reports whether s is usable as a vanity path segment.
func ValidCustomURL(s string) bool {
	return customURLPattern.MatchString(s)
}

// ValidDiscordInvite reports whether s is a canonical discord.gg invite URL.
func ValidDiscordInvite(s string) bool {
	return discordInvitePattern.MatchString(s)
}

// NormalizeInvite removes every whitespace rune, so pasted links with stray
// spaces or line breaks still validate.
func NormalizeInvite(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// InviteCode returns the path suffix after the final "/" of a stored invite
// URL, or false when it is empty or malformed.
func InviteCode(inviteURL string) (string, bool) {
	idx := strings.LastIndex(inviteURL, "/")
	code := inviteURL[idx+1:]
	if code == "" || !inviteCodePattern.MatchString(code) {
		return "", false
	}
	return code, true
}
