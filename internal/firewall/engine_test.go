package firewall

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tollgate/internal/clock"
	"grimm.is/tollgate/internal/events"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

func newTestEngine(t *testing.T, def Action, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithLogger(logging.Discard()),
		WithMetrics(metrics.New()),
	}
	return NewEngine(def, append(base, opts...)...)
}

func ruleNames(rules []*Rule) []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	return names
}

func TestEngine_DefaultAction(t *testing.T) {
	e := newTestEngine(t, ActionDeny)

	d := e.Evaluate(tcpPacket(""))
	assert.Equal(t, ActionDeny, d.Action)
	assert.Equal(t, SourceDefault, d.Source)
	assert.Nil(t, d.Rule)
	assert.Equal(t, "default", d.RuleName())

	e.SetDefaultAction(ActionAllow)
	assert.Equal(t, ActionAllow, e.DefaultAction())
	assert.True(t, e.Evaluate(tcpPacket("")).Allowed())
}

func TestEngine_WhitelistDominates(t *testing.T) {
	e := newTestEngine(t, ActionDeny)
	e.AddRule(&Rule{Name: "deny-all", Action: ActionDeny})
	e.AddBlacklist(AddressPattern{IP: "10.0.0.5"})
	e.AddWhitelist(AddressPattern{IP: "10.0.0.0/24"})

	d := e.Evaluate(tcpPacket("anything"))
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, SourceWhitelist, d.Source)
	assert.Equal(t, "whitelist", d.RuleName())
}

func TestEngine_BlacklistBeforeRules(t *testing.T) {
	e := newTestEngine(t, ActionAllow)
	e.AddRule(&Rule{Name: "allow-all", Action: ActionAllow})
	e.AddBlacklist(AddressPattern{IP: "10.0.0.5", Port: "40000"})

	d := e.Evaluate(tcpPacket(""))
	assert.Equal(t, ActionDeny, d.Action)
	assert.Equal(t, SourceBlacklist, d.Source)

	e.ClearBlacklist()
	d = e.Evaluate(tcpPacket(""))
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "allow-all", d.RuleName())
}

func TestEngine_FirstMatchWins(t *testing.T) {
	e := newTestEngine(t, ActionDeny)
	e.AddRule(&Rule{Name: "allow-tcp", Action: ActionAllow, Protocol: ProtocolTCP})
	e.AddRule(&Rule{Name: "deny-8080", Action: ActionDeny, DstPort: "8080"})

	d := e.Evaluate(tcpPacket(""))
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "allow-tcp", d.RuleName())

	// Inserting at the front changes the outcome.
	e.AddRule(&Rule{Name: "deny-first", Action: ActionDeny, DstPort: "8080"}, 0)
	d = e.Evaluate(tcpPacket(""))
	assert.Equal(t, ActionDeny, d.Action)
	assert.Equal(t, "deny-first", d.RuleName())
	assert.Equal(t, SourceRule, d.Source)
}

func TestEngine_AddRuleIndexClamped(t *testing.T) {
	e := newTestEngine(t, ActionDeny)
	e.AddRule(&Rule{Name: "a"})
	e.AddRule(&Rule{Name: "b"})
	e.AddRule(&Rule{Name: "z"}, 99)
	e.AddRule(&Rule{Name: "first"}, -3)
	e.AddRule(&Rule{Name: "mid"}, 2)

	assert.Equal(t, []string{"first", "a", "mid", "b", "z"}, ruleNames(e.Rules()))
}

func TestEngine_RemoveRule(t *testing.T) {
	e := newTestEngine(t, ActionDeny)
	e.ExtendRules([]*Rule{{Name: "a"}, {Name: "dup", Description: "first"}, {Name: "b"}, {Name: "dup", Description: "second"}})

	assert.False(t, e.RemoveRule("nonexistent"))
	assert.Equal(t, []string{"a", "dup", "b", "dup"}, ruleNames(e.Rules()))

	assert.True(t, e.RemoveRule("a"))
	assert.NotContains(t, ruleNames(e.Rules()), "a")

	// Only the first duplicate goes.
	assert.True(t, e.RemoveRule("dup"))
	rules := e.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "second", rules[1].Description)

	e.ClearRules()
	assert.Empty(t, e.Rules())
}

func TestEngine_RulesSnapshot(t *testing.T) {
	e := newTestEngine(t, ActionDeny)
	e.AddRule(&Rule{Name: "a"})

	snap := e.Rules()
	snap[0] = &Rule{Name: "mutated"}
	assert.Equal(t, "a", e.Rules()[0].Name)
}

func TestEngine_ListsSnapshotAndClear(t *testing.T) {
	e := newTestEngine(t, ActionDeny)
	e.AddWhitelist(AddressPattern{IP: "1.1.1.1"})
	e.AddBlacklist(AddressPattern{IP: "2.2.2.2"})

	assert.Len(t, e.Whitelist(), 1)
	assert.Len(t, e.Blacklist(), 1)

	e.ClearWhitelist()
	e.ClearBlacklist()
	assert.Empty(t, e.Whitelist())
	assert.Empty(t, e.Blacklist())
}

func TestEngine_CreateLogRecord(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 800, time.Local)
	var out bytes.Buffer
	hub := events.NewHub()
	sub := hub.Subscribe(4, events.EventDecision)
	reg := metrics.New()

	e := NewEngine(ActionDeny,
		WithClock(clock.NewMockClock(now)),
		WithLogger(logging.New(logging.Config{Level: logging.LevelInfo, Output: &out})),
		WithEventHub(hub),
		WithMetrics(reg),
	)

	pkt := tcpPacket("payload")
	rec := e.CreateLogRecord(pkt, ActionDeny, "block-8080", "connection request")

	assert.Equal(t, now, rec.Timestamp)
	assert.Equal(t, "block-8080", rec.RuleName)
	assert.Equal(t, []LogRecord{rec}, e.RecentLogs())

	line := out.String()
	assert.Contains(t, line, "DENY 10.0.0.5:40000 -> 192.168.1.1:8080")
	assert.Contains(t, line, "rule=block-8080")
	assert.Contains(t, line, `message="connection request"`)

	select {
	case ev := <-sub:
		exported, ok := ev.Data.(ExportedRecord)
		require.True(t, ok)
		assert.Equal(t, "2025-03-04T05:06:07", exported.Timestamp)
		assert.Equal(t, "block-8080", exported.Rule)
	case <-time.After(time.Second):
		t.Fatal("no decision event published")
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.LogRecords))
}

func TestEngine_RecordCountsDecision(t *testing.T) {
	reg := metrics.New()
	e := newTestEngine(t, ActionDeny, WithMetrics(reg))
	e.AddRule(&Rule{Name: "block-8080", Action: ActionDeny, Protocol: ProtocolTCP, DstPort: "8080"})

	pkt := tcpPacket("")
	d := e.Evaluate(pkt)
	rec := e.Record(pkt, d, "connection request")

	assert.Equal(t, "block-8080", rec.RuleName)
	assert.Equal(t, ActionDeny, rec.Action)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Decisions.WithLabelValues("TCP", "DENY", "rule")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.RuleHits.WithLabelValues("block-8080", "DENY")))
}

func TestEngine_LogCapacity(t *testing.T) {
	e := newTestEngine(t, ActionAllow, WithLogLimit(3))
	assert.Equal(t, 3, e.LogLimit())

	for i := 0; i < 5; i++ {
		e.CreateLogRecord(tcpPacket(""), ActionAllow, "default", fmt.Sprintf("m%d", i))
	}

	logs := e.RecentLogs()
	require.Len(t, logs, 3)
	assert.Equal(t, "m2", logs[0].Message)
	assert.Equal(t, "m4", logs[2].Message)

	last := e.LastLogs(2)
	require.Len(t, last, 2)
	assert.Equal(t, "m3", last[0].Message)
	assert.Equal(t, "m4", last[1].Message)
}

func TestEngine_LogRecordPayloadIsCopied(t *testing.T) {
	e := newTestEngine(t, ActionAllow)
	buf := []byte("first")
	e.CreateLogRecord(PacketInfo{Protocol: ProtocolTCP, Payload: buf}, ActionAllow, "default", "")
	copy(buf, "XXXXX")

	assert.Equal(t, "first", string(e.RecentLogs()[0].Packet.Payload))
}

func TestEngine_DefaultLogLimit(t *testing.T) {
	e := newTestEngine(t, ActionAllow)
	assert.Equal(t, DefaultLogLimit, e.LogLimit())
}

func TestEngine_ConcurrentEvaluate(t *testing.T) {
	e := newTestEngine(t, ActionAllow, WithLogLimit(50))
	e.AddRule(&Rule{Name: "content", Action: ActionDeny, Pattern: "bad"})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				pkt := tcpPacket("some bad bytes")
				e.Record(pkt, e.Evaluate(pkt), "client_to_server")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Len(t, e.RecentLogs(), 50)
	for _, rec := range e.RecentLogs() {
		assert.Equal(t, ActionDeny, rec.Action)
	}
}
