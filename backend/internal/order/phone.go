package order

import (
	"strconv"
	"strings"
)

// Caller-id sentinels stored when no usable number is available.
const (
	CallerUnknown = "unknown"
	CallerBlocked = "blocked"
)

var blockedMarkers = []string{"anonymous", "blocked", "restricted", "private", "unavailable"}

// NormalizePhone reduces raw to 10 digits, dropping a leading US country code.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}

// ResolveCallerID turns the telephony "From" value into 10 digits or a
// sentinel. The result is never empty.
func ResolveCallerID(from string) string {
	lower := strings.ToLower(strings.TrimSpace(from))
	if lower == "" || lower == "null" || lower == "undefined" || lower == CallerUnknown {
		return CallerUnknown
	}
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return CallerBlocked
		}
	}
	if digits, ok := NormalizePhone(lower); ok {
		return digits
	}
	return CallerUnknown
}

// FormatPhone renders a stored phone for people: (123) 456-7890, Unknown or Blocked.
func FormatPhone(phone string) string {
	switch phone {
	case "", CallerUnknown:
		return "Unknown"
	case CallerBlocked:
		return "Blocked"
	}
	digits, ok := NormalizePhone(phone)
	if !ok {
		return phone
	}
	return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
