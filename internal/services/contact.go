package services

import (
	"net/mail"
	"regexp"
	"strings"
)

var (
	reLetters = regexp.MustCompile(`\pL`)
	// digits, spaces, + - ( ) . /
	reAllowed = regexp.MustCompile(`^[0-9+\-\s().\/]+$`)
	reDigits  = regexp.MustCompile(`[^0-9]`)
)

// NormEmail lowercases and trims an address. ok is false for a non-empty
// value that does not parse.
func NormEmail(s string) (string, bool) {
	e := strings.TrimSpace(strings.ToLower(s))
	if e == "" {
		return "", true
	}
	addr, err := mail.ParseAddress(e)
	if err != nil {
		return e, false
	}
	return addr.Address, true
}

// NormPhone strips separators from a phone number. International numbers
// (leading + or 00) come back as +digits; anything else keeps its local
// digits. Values with letters or stray symbols normalise to "".
func NormPhone(p string) string {
	s := strings.TrimSpace(p)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}
	intl := strings.HasPrefix(s, "+") || strings.HasPrefix(s, "00")
	d := reDigits.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "00") {
		d = d[2:]
	}
	if d == "" {
		return ""
	}
	if intl {
		return "+" + d
	}
	return d
}
