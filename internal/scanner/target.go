package scanner

import (
	"net/netip"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// domainRegex accepts one or more LDH labels followed by an alphabetic or
// punycode TLD. Input is lowercased ASCII by then.
var domainRegex = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:[a-z]{2,63}|xn--[a-z0-9-]{1,59})$`)

const maxDomainLength = 253

// ValidateTarget checks that raw is a dotted-quad IPv4 address or a domain
// name and returns its canonical form. Internationalized names are converted
// to their ASCII (punycode) form.
func ValidateTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", &schemas.ValidationError{Field: "target", Reason: "target is required"}
	}
	// ParseAddr rejects leading-zero octets, which some resolvers read as octal.
	if addr, err := netip.ParseAddr(target); err == nil {
		if addr.Is4() {
			return addr.String(), nil
		}
		return "", &schemas.ValidationError{Field: "target", Reason: "only IPv4 addresses are supported"}
	}

	invalid := &schemas.ValidationError{Field: "target", Reason: "must be a valid IPv4 address or domain name"}
	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(target, "."))
	if err != nil {
		return "", invalid
	}
	ascii = strings.ToLower(ascii)
	if len(ascii) > maxDomainLength || !domainRegex.MatchString(ascii) {
		return "", invalid
	}
	return ascii, nil
}
