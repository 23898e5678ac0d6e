package firewall

import (
	"math"
	"net/netip"
	"strconv"
	"strings"
)

// isWildcard reports whether a condition means "match anything".
func isWildcard(condition string) bool {
	return condition == "" || condition == "*" || strings.EqualFold(condition, "any")
}

// MatchIP resolves an address condition against a concrete IP string.
//
// Accepted conditions: "" / "*" / "any" (always match), a CIDR network
// ("10.0.0.0/24", host bits allowed), or an exact textual IP. Malformed
// networks or values never match.
func MatchIP(value, condition string) bool {
	condition = strings.TrimSpace(condition)
	if isWildcard(condition) {
		return true
	}
	if strings.Contains(condition, "/") {
		prefix, err := netip.ParsePrefix(condition)
		if err != nil {
			return false
		}
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return false
		}
		return prefix.Masked().Contains(addr)
	}
	return value == condition
}

// MatchPort resolves a port condition against a concrete port.
//
// The condition is a comma separated list of tokens; each token is either a
// single port ("80") or an inclusive range ("8000-8100"). Tokens that are not
// made of digits are skipped. Any matching token matches the condition.
func MatchPort(value int, condition string) bool {
	condition = strings.TrimSpace(condition)
	if isWildcard(condition) {
		return true
	}
	for _, token := range strings.Split(condition, ",") {
		token = strings.TrimSpace(token)
		if start, end, isRange := strings.Cut(token, "-"); isRange {
			lo, okLo := parseDigits(start)
			hi, okHi := parseDigits(end)
			if okLo && okHi && lo <= value && value <= hi {
				return true
			}
			continue
		}
		if port, ok := parseDigits(token); ok && port == value {
			return true
		}
	}
	return false
}

// parseDigits parses a non-empty run of ASCII digits. Values too large for an
// int saturate instead of failing.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return math.MaxInt, true
	}
	return n, true
}
