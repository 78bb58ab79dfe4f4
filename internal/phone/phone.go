package phone

import "strings"

// Normalize canonicalizes a raw phone number to a best-effort E.164 string.
//
// Rules:
// - Strip every non-digit character.
// - 11 digits starting with "1" -> "+<digits>" (NANP with country code).
// - Exactly 10 digits -> "+1<digits>" (bare NANP number).
// - Anything else -> "+<digits>".
//
// There is no error case. Garbage in produces a garbage-but-stable string
// out; callers must compare normalized values only, never raw input.
func Normalize(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return strings.TrimSpace(raw)
	}

	switch {
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	default:
		return "+" + digits
	}
}

// Suffix returns the last n digits of a normalized number, for display
// contexts where the full number should not be shown.
func Suffix(normalized string, n int) string {
	digits := strings.TrimPrefix(normalized, "+")
	if n <= 0 || len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

// Equal reports whether two raw numbers refer to the same line after
// normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
