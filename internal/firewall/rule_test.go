package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tcpPacket(payload string) PacketInfo {
	p := PacketInfo{
		Protocol: ProtocolTCP,
		SrcIP:    "10.0.0.5",
		SrcPort:  40000,
		DstIP:    "192.168.1.1",
		DstPort:  8080,
	}
	if payload != "" {
		p.Payload = []byte(payload)
	}
	return p
}

func TestRule_Matches(t *testing.T) {
	pkt := tcpPacket("")

	tests := []struct {
		name string
		rule *Rule
		want bool
	}{
		{"match all", &Rule{Name: "all", Protocol: ProtocolAny}, true},
		{"empty protocol is any", &Rule{Name: "all"}, true},
		{"protocol match", &Rule{Protocol: ProtocolTCP}, true},
		{"protocol mismatch", &Rule{Protocol: ProtocolUDP}, false},
		{"src cidr", &Rule{SrcIP: "10.0.0.0/24"}, true},
		{"src mismatch", &Rule{SrcIP: "10.0.1.0/24"}, false},
		{"dst exact", &Rule{DstIP: "192.168.1.1"}, true},
		{"dst mismatch", &Rule{DstIP: "192.168.1.2"}, false},
		{"src port range", &Rule{SrcPort: "30000-50000"}, true},
		{"src port mismatch", &Rule{SrcPort: "22"}, false},
		{"dst port", &Rule{DstPort: "8080"}, true},
		{"dst port mismatch", &Rule{DstPort: "80,443"}, false},
		{"all conditions", &Rule{Protocol: ProtocolTCP, SrcIP: "10.0.0.5", DstIP: "192.168.1.0/24", SrcPort: "40000", DstPort: "8000-9000"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rule.Matches(pkt))
		})
	}
}

func TestRule_ContentPattern(t *testing.T) {
	rule := &Rule{Name: "secret", Action: ActionDeny, Protocol: ProtocolTCP, Pattern: "secret"}

	assert.True(t, rule.Matches(tcpPacket("this is a secret value")))
	assert.False(t, rule.Matches(tcpPacket("this is a SECRET value")), "matching is case-sensitive")
	assert.False(t, rule.Matches(tcpPacket("")), "empty payload cannot satisfy a non-empty pattern")

	regex := &Rule{Pattern: `^GET /admin`}
	assert.True(t, regex.Matches(tcpPacket("GET /admin HTTP/1.1")))
	assert.False(t, regex.Matches(tcpPacket("POST /GET /admin")))

	empty := &Rule{Pattern: `^$`}
	assert.True(t, empty.Matches(tcpPacket("")), "a pattern accepting empty input matches an empty payload")
}

func TestRule_ContentPatternBinaryPayload(t *testing.T) {
	rule := &Rule{Pattern: "token=abc"}

	pkt := tcpPacket("")
	pkt.Payload = []byte{0xff, 0xfe, 't', 'o', 'k', 'e', 'n', '=', 0xc3, 'a', 'b', 'c'}

	// Invalid sequences are dropped before matching.
	assert.True(t, rule.Matches(pkt))
	assert.Equal(t, "token=abc", pkt.PayloadText())
}

func TestRule_PatternCacheFollowsReassignment(t *testing.T) {
	rule := &Rule{Pattern: "alpha"}
	require.True(t, rule.Matches(tcpPacket("alpha")))

	first, err := rule.pattern()
	require.NoError(t, err)
	again, err := rule.pattern()
	require.NoError(t, err)
	assert.Same(t, first, again, "compiled pattern is reused")

	rule.Pattern = "beta"
	assert.False(t, rule.Matches(tcpPacket("alpha")))
	assert.True(t, rule.Matches(tcpPacket("beta")))
}

func TestRule_InvalidPattern(t *testing.T) {
	rule := &Rule{Name: "broken", Pattern: "(unclosed"}

	assert.False(t, rule.Matches(tcpPacket("(unclosed")))
	err := rule.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `rule "broken"`)

	assert.NoError(t, (&Rule{}).Validate())
}

func TestAddressPattern_MatchesSourceOnly(t *testing.T) {
	pkt := tcpPacket("")

	assert.True(t, AddressPattern{IP: "10.0.0.0/8"}.Matches(pkt))
	assert.True(t, AddressPattern{IP: "10.0.0.5", Port: "40000"}.Matches(pkt))
	assert.False(t, AddressPattern{IP: "192.168.1.1"}.Matches(pkt), "destination address is ignored")
	assert.False(t, AddressPattern{Port: "8080"}.Matches(pkt), "destination port is ignored")
	assert.True(t, AddressPattern{}.Matches(pkt))
}
