package validator

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	nullByteRegex   = regexp.MustCompile(`\x00`)
)

// SanitizeString drops null bytes, trims and collapses whitespace.
func SanitizeString(input string) string {
	input = nullByteRegex.ReplaceAllString(input, "")
	input = strings.TrimSpace(input)
	return multiSpaceRegex.ReplaceAllString(input, " ")
}

// SanitizeName keeps letters, digits, spaces and a few separators.
func SanitizeName(input string) string {
	input = SanitizeString(input)
	var result strings.Builder
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || strings.ContainsRune("-_.'()", r) {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// SanitizeBaseURL trims whitespace and trailing slashes.
func SanitizeBaseURL(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
