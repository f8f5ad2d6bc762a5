package model

import (
	"fmt"
	"net/netip"
	"strings"
)

// CanonicalIP parses an IPv4 or IPv6 literal and returns its canonical text
// form, so the same address always keys the same entry. IPv4-mapped IPv6
// addresses are reduced to IPv4.
func CanonicalIP(value string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return "", &ValidationError{Field: "ip", Message: fmt.Sprintf("malformed IP address %q", value)}
	}
	return addr.Unmap().String(), nil
}
