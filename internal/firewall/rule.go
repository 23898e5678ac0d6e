package firewall

import (
	"fmt"
	"regexp"
	"sync"
)

// Rule is a named predicate over packet attributes mapped to an action.
// Conditions are stored as text; an empty condition matches anything.
//
// Rules are shared by pointer: the compiled content pattern is cached on the
// instance, so a Rule must not be copied after first use.
type Rule struct {
	Name        string   `json:"name"`
	Action      Action   `json:"action"`
	Protocol    Protocol `json:"protocol"`
	SrcIP       string   `json:"src_ip,omitempty"`
	SrcPort     string   `json:"src_port,omitempty"`
	DstIP       string   `json:"dst_ip,omitempty"`
	DstPort     string   `json:"dst_port,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Description string   `json:"description,omitempty"`

	mu           sync.Mutex
	compiled     *regexp.Regexp
	compiledFrom string
	compileErr   error
}

// Matches reports whether every condition of the rule holds for packet.
// Checks run in order protocol, source IP, destination IP, source port,
// destination port, content, and stop at the first failure.
func (r *Rule) Matches(packet PacketInfo) bool {
	if r.Protocol != ProtocolAny && r.Protocol != "" && packet.Protocol != r.Protocol {
		return false
	}
	if !MatchIP(packet.SrcIP, r.SrcIP) {
		return false
	}
	if !MatchIP(packet.DstIP, r.DstIP) {
		return false
	}
	if !MatchPort(packet.SrcPort, r.SrcPort) {
		return false
	}
	if !MatchPort(packet.DstPort, r.DstPort) {
		return false
	}
	if r.Pattern != "" {
		re, err := r.pattern()
		if err != nil {
			return false
		}
		if !re.MatchString(packet.PayloadText()) {
			return false
		}
	}
	return true
}

// Validate compiles the content pattern, reporting a syntax error if any.
func (r *Rule) Validate() error {
	if r.Pattern == "" {
		return nil
	}
	_, err := r.pattern()
	return err
}

// pattern returns the cached compiled pattern, rebuilding it if Pattern was
// reassigned since the last compile.
func (r *Rule) pattern() (*regexp.Regexp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if (r.compiled != nil || r.compileErr != nil) && r.compiledFrom == r.Pattern {
		return r.compiled, r.compileErr
	}

	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		err = fmt.Errorf("rule %q: invalid content pattern: %w", r.Name, err)
	}
	r.compiled = re
	r.compileErr = err
	r.compiledFrom = r.Pattern
	return re, err
}

// AddressPattern is a whitelist or blacklist entry. It matches on the
// packet's source endpoint only.
type AddressPattern struct {
	IP   string `json:"ip,omitempty"`
	Port string `json:"port,omitempty"`
}

// Matches reports whether the packet's source address and port satisfy the
// pattern.
func (a AddressPattern) Matches(packet PacketInfo) bool {
	return MatchIP(packet.SrcIP, a.IP) && MatchPort(packet.SrcPort, a.Port)
}
