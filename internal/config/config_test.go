package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

const fullConfig = `
proxy {
  listen_host = "127.0.0.1"
  listen_port = 9100
  target_host = "10.0.0.20"
  target_port = 8080
  enable_udp  = true
}

engine {
  default_action = "deny"
  log_limit      = 50
}

whitelist {
  ip = "192.168.1.0/24"
}

blacklist {
  ip   = "10.6.6.6"
  port = 22
}

rule "allow-http" {
  action   = "ALLOW"
  protocol = "TCP"
  dst_port = "80,8080"
}

rule "no-secrets" {
  action  = "DENY"
  pattern = "secret"
}

api {
  listen  = "127.0.0.1:9191"
  metrics = false
}

logging {
  level = "debug"
  json  = true
}
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse("tollgate.hcl", []byte(fullConfig))
	require.NoError(t, err)

	pc := cfg.ProxyConfig()
	assert.Equal(t, "127.0.0.1:9100", pc.ListenAddr())
	assert.Equal(t, "10.0.0.20:8080", pc.TargetAddr())
	assert.True(t, pc.EnableTCP, "tcp keeps its default")
	assert.True(t, pc.EnableUDP)

	def, err := cfg.DefaultAction()
	require.NoError(t, err)
	assert.Equal(t, firewall.ActionDeny, def)
	assert.Equal(t, 50, cfg.LogLimit())

	require.Len(t, cfg.Blacklist, 1)
	assert.Equal(t, "22", cfg.Blacklist[0].Port)

	assert.True(t, cfg.APIEnabled())
	assert.Equal(t, "127.0.0.1:9191", cfg.APIListen())
	assert.False(t, cfg.MetricsEnabled())

	lc, err := cfg.LoggingConfig()
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.JSON)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("empty.hcl", nil)
	require.NoError(t, err)

	pc := cfg.ProxyConfig()
	assert.Equal(t, "0.0.0.0:9000", pc.ListenAddr())
	assert.Equal(t, "127.0.0.1:8000", pc.TargetAddr())
	assert.True(t, pc.EnableTCP)
	assert.False(t, pc.EnableUDP)

	def, err := cfg.DefaultAction()
	require.NoError(t, err)
	assert.Equal(t, firewall.ActionDeny, def)
	assert.Equal(t, firewall.DefaultLogLimit, cfg.LogLimit())
	assert.Equal(t, DefaultAPIListen, cfg.APIListen())
	assert.True(t, cfg.MetricsEnabled())
}

func TestParse_EnvironmentVariables(t *testing.T) {
	t.Setenv("TOLLGATE_TEST_BACKEND", "backend.internal")

	cfg, err := Parse("env.hcl", []byte(`
proxy {
  target_host = env.TOLLGATE_TEST_BACKEND
}
`))
	require.NoError(t, err)
	assert.Equal(t, "backend.internal", cfg.ProxyConfig().TargetHost)
}

func TestParse_JSONSyntax(t *testing.T) {
	cfg, err := Parse("tollgate.json", []byte(`{
  "proxy": {"listen_port": 7000},
  "engine": {"default_action": "DENY"}
}`))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.ProxyConfig().ListenPort)
}

func TestParse_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "port out of range",
			src:  `proxy { listen_port = 70000 }`,
			want: "proxy.listen_port: must be at most 65535",
		},
		{
			name: "unknown default action",
			src:  `engine { default_action = "DROP" }`,
			want: "engine.default_action",
		},
		{
			name: "bad log level",
			src:  `logging { level = "loud" }`,
			want: "logging.level",
		},
		{
			name: "no transports",
			src:  `proxy { enable_tcp = false }`,
			want: "at least one of tcp or udp",
		},
		{
			name: "duplicate rule",
			src:  "rule \"a\" {}\nrule \"a\" {}",
			want: "duplicate name",
		},
		{
			name: "bad rule pattern",
			src:  `rule "broken" { pattern = "(" }`,
			want: "broken",
		},
		{
			name: "bad rule protocol",
			src:  `rule "icmp" { protocol = "ICMP" }`,
			want: "unknown protocol",
		},
		{
			name: "bad api listen",
			src:  `api { listen = "nonsense" }`,
			want: "api.listen: must be host:port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.hcl", []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("broken.hcl", []byte(`proxy {`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config")
}

func TestLoad_RulesFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(`
rules:
  - name: block-ssh
    action: DENY
    protocol: TCP
    dst_port: 22
  - name: fallback
`), 0o644))
	cfgPath := filepath.Join(dir, "tollgate.hcl")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
rules_file = "rules.yaml"

rule "inline-first" {
  action = "ALLOW"
  src_ip = "10.0.0.0/8"
}
`), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	records, err := cfg.RuleRecords()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "inline-first", records[0].Name)
	assert.Equal(t, "block-ssh", records[1].Name)
	assert.Equal(t, "22", records[1].DstPort)
	assert.Equal(t, "fallback", records[2].Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewEngine(t *testing.T) {
	cfg, err := Parse("tollgate.hcl", []byte(fullConfig))
	require.NoError(t, err)

	engine, err := cfg.NewEngine(
		firewall.WithLogger(logging.Discard()),
		firewall.WithMetrics(metrics.New()),
	)
	require.NoError(t, err)

	assert.Equal(t, firewall.ActionDeny, engine.DefaultAction())
	assert.Equal(t, 50, engine.LogLimit())
	assert.Len(t, engine.Whitelist(), 1)
	assert.Len(t, engine.Blacklist(), 1)

	rules := engine.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "allow-http", rules[0].Name)
	assert.Equal(t, "no-secrets", rules[1].Name)

	d := engine.Evaluate(firewall.PacketInfo{
		Protocol: firewall.ProtocolTCP,
		SrcIP:    "10.6.6.6",
		SrcPort:  22,
		DstIP:    "127.0.0.1",
		DstPort:  80,
	})
	assert.Equal(t, firewall.ActionDeny, d.Action)
	assert.Equal(t, firewall.SourceBlacklist, d.Source)

	d = engine.Evaluate(firewall.PacketInfo{
		Protocol: firewall.ProtocolTCP,
		SrcIP:    "172.16.0.1",
		SrcPort:  40000,
		DstIP:    "127.0.0.1",
		DstPort:  8080,
	})
	assert.Equal(t, firewall.ActionAllow, d.Action)
	assert.Equal(t, "allow-http", d.RuleName())
}

func TestNewEngine_BadRulesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(`
- name: ok
- name: bad
  action: MAYBE
`), 0o644))

	cfg := Default()
	cfg.RulesFile = filepath.Join(dir, "rules.yaml")

	_, err := cfg.NewEngine(firewall.WithLogger(logging.Discard()), firewall.WithMetrics(metrics.New()))
	require.Error(t, err)
	assert.ErrorIs(t, err, firewall.ErrUnknownAction)
}

func TestDefault_EngineDeniesUnmatchedTraffic(t *testing.T) {
	engine, err := Default().NewEngine(firewall.WithLogger(logging.Discard()), firewall.WithMetrics(metrics.New()))
	require.NoError(t, err)

	d := engine.Evaluate(firewall.PacketInfo{
		Protocol: firewall.ProtocolTCP,
		SrcIP:    "192.0.2.10",
		SrcPort:  51000,
		DstIP:    "127.0.0.1",
		DstPort:  9000,
	})
	assert.Equal(t, firewall.ActionDeny, d.Action)
	assert.Equal(t, firewall.SourceDefault, d.Source)
}
