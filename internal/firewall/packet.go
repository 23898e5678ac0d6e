package firewall

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var (
	// ErrUnknownProtocol is returned when parsing a protocol name fails.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrUnknownAction is returned when parsing an action name fails.
	ErrUnknownAction = errors.New("unknown action")
)

// Protocol is the transport protocol a rule or packet refers to.
// ProtocolAny is only meaningful inside rule definitions.
type Protocol string

const (
	ProtocolAny Protocol = "ANY"
	ProtocolTCP Protocol = "TCP"
	ProtocolUDP Protocol = "UDP"
)

// ParseProtocol converts a case-insensitive protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ANY":
		return ProtocolAny, nil
	case "TCP":
		return ProtocolTCP, nil
	case "UDP":
		return ProtocolUDP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

func (p Protocol) String() string { return string(p) }

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(b []byte) error {
	parsed, err := ParseProtocol(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Action is the verdict applied to a packet.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionDeny  Action = "DENY"
)

// ParseAction converts a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALLOW":
		return ActionAllow, nil
	case "DENY":
		return ActionDeny, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) String() string { return string(a) }

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PacketInfo describes one observed unit of traffic: a TCP connection
// attempt (empty payload), a relayed TCP chunk, or a UDP datagram.
// It is a value type and never mutated after construction.
type PacketInfo struct {
	Protocol Protocol
	SrcIP    string
	SrcPort  int
	DstIP    string
	DstPort  int
	Payload  []byte
}

// PayloadText decodes the payload as UTF-8, dropping invalid sequences.
func (p PacketInfo) PayloadText() string {
	if len(p.Payload) == 0 {
		return ""
	}
	return strings.ToValidUTF8(string(p.Payload), "")
}

// Src renders the source endpoint as "ip:port".
func (p PacketInfo) Src() string {
	return p.SrcIP + ":" + strconv.Itoa(p.SrcPort)
}

// Dst renders the destination endpoint as "ip:port".
func (p PacketInfo) Dst() string {
	return p.DstIP + ":" + strconv.Itoa(p.DstPort)
}

// Snapshot returns a copy whose payload no longer aliases the caller's buffer.
func (p PacketInfo) Snapshot() PacketInfo {
	if p.Payload != nil {
		p.Payload = append([]byte(nil), p.Payload...)
	}
	return p
}

// SplitEndpoint extracts ip and port from a net.Addr. ok is false when the
// address is missing or cannot be parsed.
func SplitEndpoint(addr net.Addr) (ip string, port int, ok bool) {
	if addr == nil {
		return "", 0, false
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		if a.IP == nil {
			return "", 0, false
		}
		return a.IP.String(), a.Port, true
	case *net.UDPAddr:
		if a.IP == nil {
			return "", 0, false
		}
		return a.IP.String(), a.Port, true
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, false
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}
