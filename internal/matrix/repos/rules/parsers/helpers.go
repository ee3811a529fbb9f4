package parsers

import (
	"strings"
)

// switchDirective prefixes switch lines in rule text. The value that follows
// the scope is true when filtering is turned off for that scope.
const switchDirective = "matrix-off:"

// stripLine removes a BOM, inline comments and surrounding whitespace.
func stripLine(line string) string {
	line = strings.TrimPrefix(line, "\uFEFF")
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// parseOff interprets the value of a switch line.
func parseOff(s string) (off bool, ok bool) {
	switch strings.ToLower(s) {
	case "true", "on", "1", "yes":
		return true, true
	case "false", "off", "0", "no":
		return false, true
	default:
		return false, false
	}
}
