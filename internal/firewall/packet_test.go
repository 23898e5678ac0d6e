package firewall

import (
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	for in, want := range map[string]Protocol{"any": ProtocolAny, "TCP": ProtocolTCP, " udp ": ProtocolUDP} {
		got, err := ParseProtocol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseProtocol("icmp")
	assert.True(t, errors.Is(err, ErrUnknownProtocol))
}

func TestParseAction(t *testing.T) {
	got, err := ParseAction("allow")
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, got)

	_, err = ParseAction("reject")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEnumJSON(t *testing.T) {
	var v struct {
		Action   Action   `json:"action"`
		Protocol Protocol `json:"protocol"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"action":"deny","protocol":"udp"}`), &v))
	assert.Equal(t, ActionDeny, v.Action)
	assert.Equal(t, ProtocolUDP, v.Protocol)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"DENY","protocol":"UDP"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"action":"drop"}`), &v))
}

func TestPacketInfo_Endpoints(t *testing.T) {
	p := PacketInfo{Protocol: ProtocolUDP, SrcIP: "10.0.0.1", SrcPort: 53, DstIP: "::1", DstPort: 5353}
	assert.Equal(t, "10.0.0.1:53", p.Src())
	assert.Equal(t, "::1:5353", p.Dst())
	assert.Equal(t, "", p.PayloadText())
}

func TestPacketInfo_Snapshot(t *testing.T) {
	buf := []byte("hello")
	p := PacketInfo{Payload: buf[:5]}
	snap := p.Snapshot()
	buf[0] = 'j'
	assert.Equal(t, "hello", string(snap.Payload))
}

func TestSplitEndpoint(t *testing.T) {
	ip, port, ok := SplitEndpoint(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000})
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", ip)
	assert.Equal(t, 9000, port)

	ip, port, ok = SplitEndpoint(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 53})
	require.True(t, ok)
	assert.Equal(t, "::1", ip)
	assert.Equal(t, 53, port)

	_, _, ok = SplitEndpoint(nil)
	assert.False(t, ok)

	_, _, ok = SplitEndpoint(&net.TCPAddr{})
	assert.False(t, ok)

	_, _, ok = SplitEndpoint(&net.UnixAddr{Name: "/tmp/sock", Net: "unix"})
	assert.False(t, ok)
}
