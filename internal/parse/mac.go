package parse

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	separatorRe = regexp.MustCompile(`[\s:\-\.]`)
	hexRe       = regexp.MustCompile(`^[0-9A-F]{12}$`)
)

// MACAddress normalises a hardware address into the colon separated, upper case
// form the inventory service uses as the device serial ("AA:BB:CC:DD:EE:FF").
// Colons, dashes, dots (Cisco style) and whitespace are accepted as separators.
func MACAddress(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = separatorRe.ReplaceAllString(s, "")

	if !hexRe.MatchString(s) {
		return "", fmt.Errorf("unable to parse mac address: %q", raw)
	}

	parts := make([]string, 0, 6)
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":"), nil
}
