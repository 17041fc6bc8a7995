// Package phone canonicalises Indian mobile numbers.
//
// The canonical form is the 10-digit national number. It is the only form
// ever persisted; the country-code-prefixed form is produced on demand for
// the messaging gateway.
package phone

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// CountryCode is prepended for outbound dispatch.
const CountryCode = "91"

const maskedPrefix = 2

// ErrInvalidFormat is returned for numbers that are not valid mobile numbers.
var ErrInvalidFormat = errors.New("invalid mobile number format")

var nationalPattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == '-' || r == '+'
}

// Normalize strips whitespace, hyphens and plus signs, drops a leading
// country code when exactly ten digits follow it, and validates the result.
func Normalize(raw string) (string, error) {
	number := strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, raw)
	if len(number) == len(CountryCode)+10 && strings.HasPrefix(number, CountryCode) {
		number = number[len(CountryCode):]
	}
	if !nationalPattern.MatchString(number) {
		return "", ErrInvalidFormat
	}
	return number, nil
}

// ForGateway prefixes a canonical number with the country code.
func ForGateway(national string) string {
	return CountryCode + national
}

// Mask hides everything but a short prefix. Every log line and audit
// snapshot that mentions a contact number goes through Mask.
func Mask(number string) string {
	if number == "" {
		return ""
	}
	runes := []rune(number)
	if len(runes) <= maskedPrefix {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:maskedPrefix]) + strings.Repeat("*", len(runes)-maskedPrefix)
}
