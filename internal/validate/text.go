package validate

import (
	"regexp"
	"strings"
)

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
	// C0 controls other than tab and newline, plus DEL.
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// StripANSI removes ANSI escape sequences and stray control characters from
// upstream text such as WHOIS replies and certificate names.
func StripANSI(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return s
	}
	return controlChars.ReplaceAllString(ansiEscape.ReplaceAllString(s, ""), "")
}
