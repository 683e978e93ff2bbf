// Package privacy holds helpers for keeping personal data out of logs.
// Verification requests carry biometric material, so everything that reaches
// a log line must already be anonymized.
package privacy

import (
	"fmt"
	"net"
	"strings"
)

// AnonymizeIP truncates an IP address so it no longer identifies a single
// host. IPv4 addresses lose the last octet (/24); IPv6 addresses keep only
// the /48 prefix. A "host:port" remote address is accepted as-is.
//
// Returns "invalid" for unparseable input and "unknown" for empty input.
func AnonymizeIP(addr string) string {
	if addr == "" || addr == "unknown" {
		return "unknown"
	}

	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	parsed := net.ParseIP(strings.TrimSpace(addr))
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}
