package identity

import (
	"regexp"
	"strings"
)

var macRe = regexp.MustCompile(`(?i)^[0-9a-f]{2}([:\-\.]?[0-9a-f]{2}){5}$`)

var macSepRe = regexp.MustCompile(`[:\-\.]`)

// NormalizeMAC canonicalizes a reported MAC address to upper-case
// colon-separated form (AA:BB:CC:DD:EE:FF). Returns "" when the input is
// empty or not a recognizable MAC.
func NormalizeMAC(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if !macRe.MatchString(trimmed) {
		return ""
	}

	hex := strings.ToUpper(macSepRe.ReplaceAllString(trimmed, ""))
	if len(hex) != 12 {
		return ""
	}

	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, hex[i:i+2])
	}

	return strings.Join(parts, ":")
}
