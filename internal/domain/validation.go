package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

const MinPasswordLen = 6

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

func ValidName(s string) bool {
	return strings.TrimSpace(s) != ""
}

func ValidPassword(s string) bool {
	return utf8.RuneCountInString(s) >= MinPasswordLen
}

func ValidTitle(s string) bool {
	return strings.TrimSpace(s) != ""
}
