package security

import (
	"strconv"
	"strings"

	"github.com/archoncouncil/api/pkg/logger"
)

// IPAllowlist admits requests whose source address falls in a configured
// IPv4 CIDR block. With the toggle on and no blocks configured it denies
// everything.
type IPAllowlist struct {
	enabled bool
	blocks  []string
	logger  *logger.Logger
}

// NewIPAllowlist creates an allowlist. Empty entries in blocks are ignored.
func NewIPAllowlist(enabled bool, blocks []string, log *logger.Logger) *IPAllowlist {
	cleaned := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	return &IPAllowlist{
		enabled: enabled,
		blocks:  cleaned,
		logger:  log.With("component", "ip_allowlist"),
	}
}

// Enabled reports whether the allowlist is enforced.
func (a *IPAllowlist) Enabled() bool {
	return a.enabled
}

// Check decides whether ip may proceed.
func (a *IPAllowlist) Check(ip string) Decision {
	if !a.enabled {
		return Allow()
	}

	if len(a.blocks) == 0 {
		a.logger.Warn("ip allowlist enabled but no ranges configured")
		return Deny(KindIPNotAllowed)
	}

	if _, ok := parseIPv4(ip); !ok {
		// IPv6 and malformed addresses never match.
		a.logger.Warn("ip allowlist denied unsupported address", "ip", MaskIP(ip))
		return Deny(KindIPNotAllowed)
	}

	for _, block := range a.blocks {
		if MatchesCIDR(ip, block) {
			return Allow()
		}
	}

	a.logger.Warn("ip blocked", "ip", MaskIP(ip))
	return Deny(KindIPNotAllowed)
}

// MatchesCIDR reports whether the IPv4 address ip lies inside cidr.
// A block without a prefix length, or with an empty one, is treated as /32. Anything that is not
// four dot-separated octets on either side never matches.
func MatchesCIDR(ip, cidr string) bool {
	rangePart, bitsPart, hasBits := strings.Cut(cidr, "/")

	bits := 32
	if hasBits && bitsPart != "" {
		n, err := strconv.Atoi(bitsPart)
		if err != nil || n < 0 || n > 32 {
			return false
		}
		bits = n
	}

	addr, ok := parseIPv4(ip)
	if !ok {
		return false
	}
	network, ok := parseIPv4(rangePart)
	if !ok {
		return false
	}

	var mask uint32
	if bits > 0 {
		mask = ^uint32(0) << (32 - bits)
	}
	return addr&mask == network&mask
}

func parseIPv4(s string) (uint32, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return 0, false
	}

	var out uint32
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		out = out<<8 | uint32(n)
	}
	return out, true
}
