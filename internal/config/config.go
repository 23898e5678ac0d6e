package config

import (
	"fmt"

	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/proxy"
)

// DefaultAPIListen is where the control API binds when the config is silent.
const DefaultAPIListen = "127.0.0.1:9090"

// Config is the top-level configuration file.
type Config struct {
	Proxy     *ProxyBlock    `hcl:"proxy,block" json:"proxy,omitempty"`
	Engine    *EngineBlock   `hcl:"engine,block" json:"engine,omitempty"`
	Whitelist []AddressBlock `hcl:"whitelist,block" json:"whitelist,omitempty" validate:"dive"`
	Blacklist []AddressBlock `hcl:"blacklist,block" json:"blacklist,omitempty" validate:"dive"`
	Rules     []RuleBlock    `hcl:"rule,block" json:"rules,omitempty" validate:"dive"`
	RulesFile string         `hcl:"rules_file,optional" json:"rules_file,omitempty"`
	API       *APIBlock      `hcl:"api,block" json:"api,omitempty"`
	Logging   *LoggingBlock  `hcl:"logging,block" json:"logging,omitempty"`

	// dir is the directory of the source file, for relative rules_file paths.
	dir string
}

// ProxyBlock configures the relay. Unset fields take proxy.DefaultConfig values.
type ProxyBlock struct {
	ListenHost string `hcl:"listen_host,optional" json:"listen_host,omitempty"`
	ListenPort int    `hcl:"listen_port,optional" json:"listen_port,omitempty" validate:"omitempty,gte=1,lte=65535"`
	TargetHost string `hcl:"target_host,optional" json:"target_host,omitempty"`
	TargetPort int    `hcl:"target_port,optional" json:"target_port,omitempty" validate:"omitempty,gte=1,lte=65535"`
	EnableTCP  *bool  `hcl:"enable_tcp,optional" json:"enable_tcp,omitempty"`
	EnableUDP  *bool  `hcl:"enable_udp,optional" json:"enable_udp,omitempty"`
}

// EngineBlock configures the firewall engine.
type EngineBlock struct {
	DefaultAction string `hcl:"default_action,optional" json:"default_action,omitempty" validate:"omitempty,oneof=ALLOW DENY allow deny"`
	LogLimit      int    `hcl:"log_limit,optional" json:"log_limit,omitempty" validate:"omitempty,gte=1"`
}

// AddressBlock is a whitelist or blacklist entry. Empty fields match anything.
type AddressBlock struct {
	IP   string `hcl:"ip,optional" json:"ip,omitempty"`
	Port string `hcl:"port,optional" json:"port,omitempty"`
}

// RuleBlock is an inline rule. The block label is the rule name.
type RuleBlock struct {
	Name        string `hcl:"name,label" json:"name" validate:"required"`
	Action      string `hcl:"action,optional" json:"action,omitempty"`
	Protocol    string `hcl:"protocol,optional" json:"protocol,omitempty"`
	SrcIP       string `hcl:"src_ip,optional" json:"src_ip,omitempty"`
	SrcPort     string `hcl:"src_port,optional" json:"src_port,omitempty"`
	DstIP       string `hcl:"dst_ip,optional" json:"dst_ip,omitempty"`
	DstPort     string `hcl:"dst_port,optional" json:"dst_port,omitempty"`
	Pattern     string `hcl:"pattern,optional" json:"pattern,omitempty"`
	Description string `hcl:"description,optional" json:"description,omitempty"`
}

// APIBlock configures the HTTP control surface.
type APIBlock struct {
	Enabled *bool  `hcl:"enabled,optional" json:"enabled,omitempty"`
	Listen  string `hcl:"listen,optional" json:"listen,omitempty" validate:"omitempty,hostname_port"`
	Metrics *bool  `hcl:"metrics,optional" json:"metrics,omitempty"`
}

// LoggingBlock configures the process logger.
type LoggingBlock struct {
	Level string `hcl:"level,optional" json:"level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `hcl:"json,optional" json:"json,omitempty"`
}

// Default returns an empty configuration; every accessor falls back to the
// built-in defaults.
func Default() *Config {
	return &Config{}
}

// ProxyConfig merges the proxy block over proxy.DefaultConfig.
func (c *Config) ProxyConfig() proxy.Config {
	cfg := proxy.DefaultConfig()
	p := c.Proxy
	if p == nil {
		return cfg
	}
	if p.ListenHost != "" {
		cfg.ListenHost = p.ListenHost
	}
	if p.ListenPort != 0 {
		cfg.ListenPort = p.ListenPort
	}
	if p.TargetHost != "" {
		cfg.TargetHost = p.TargetHost
	}
	if p.TargetPort != 0 {
		cfg.TargetPort = p.TargetPort
	}
	if p.EnableTCP != nil {
		cfg.EnableTCP = *p.EnableTCP
	}
	if p.EnableUDP != nil {
		cfg.EnableUDP = *p.EnableUDP
	}
	return cfg
}

// DefaultAction returns the configured default action, DENY when unset.
func (c *Config) DefaultAction() (firewall.Action, error) {
	if c.Engine == nil || c.Engine.DefaultAction == "" {
		return firewall.ActionDeny, nil
	}
	return firewall.ParseAction(c.Engine.DefaultAction)
}

// LogLimit returns the ring buffer capacity.
func (c *Config) LogLimit() int {
	if c.Engine == nil || c.Engine.LogLimit <= 0 {
		return firewall.DefaultLogLimit
	}
	return c.Engine.LogLimit
}

// APIEnabled reports whether the control API should run.
func (c *Config) APIEnabled() bool {
	return c.API == nil || c.API.Enabled == nil || *c.API.Enabled
}

// APIListen returns the control API listen address.
func (c *Config) APIListen() string {
	if c.API == nil || c.API.Listen == "" {
		return DefaultAPIListen
	}
	return c.API.Listen
}

// MetricsEnabled reports whether /metrics is served on the API listener.
func (c *Config) MetricsEnabled() bool {
	return c.API == nil || c.API.Metrics == nil || *c.API.Metrics
}

// LoggingConfig converts the logging block for logging.New.
func (c *Config) LoggingConfig() (logging.Config, error) {
	cfg := logging.DefaultConfig()
	if c.Logging == nil {
		return cfg, nil
	}
	if c.Logging.Level != "" {
		lvl, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return cfg, err
		}
		cfg.Level = lvl
	}
	cfg.JSON = c.Logging.JSON
	return cfg, nil
}

// RuleRecords returns inline rules followed by those from rules_file.
func (c *Config) RuleRecords() ([]firewall.RuleRecord, error) {
	records := make([]firewall.RuleRecord, 0, len(c.Rules))
	for _, r := range c.Rules {
		records = append(records, r.Record())
	}
	if c.RulesFile == "" {
		return records, nil
	}
	fromFile, err := LoadRuleRecords(c.resolve(c.RulesFile))
	if err != nil {
		return nil, err
	}
	return append(records, fromFile...), nil
}

// Record converts an inline rule block to a bulk-load record.
func (r RuleBlock) Record() firewall.RuleRecord {
	return firewall.RuleRecord{
		Name:        r.Name,
		Action:      r.Action,
		Protocol:    r.Protocol,
		SrcIP:       r.SrcIP,
		SrcPort:     r.SrcPort,
		DstIP:       r.DstIP,
		DstPort:     r.DstPort,
		Pattern:     r.Pattern,
		Description: r.Description,
	}
}

// NewEngine builds an engine populated from the configuration. opts are
// applied after the configured log limit.
func (c *Config) NewEngine(opts ...firewall.EngineOption) (*firewall.Engine, error) {
	def, err := c.DefaultAction()
	if err != nil {
		return nil, err
	}
	records, err := c.RuleRecords()
	if err != nil {
		return nil, err
	}
	rules, err := firewall.BuildRules(records)
	if err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}

	all := append([]firewall.EngineOption{firewall.WithLogLimit(c.LogLimit())}, opts...)
	engine := firewall.NewEngine(def, all...)
	for _, w := range c.Whitelist {
		engine.AddWhitelist(firewall.AddressPattern{IP: w.IP, Port: w.Port})
	}
	for _, b := range c.Blacklist {
		engine.AddBlacklist(firewall.AddressPattern{IP: b.IP, Port: b.Port})
	}
	engine.ExtendRules(rules)
	return engine, nil
}
