package firewall

import (
	"slices"
	"sync"

	"grimm.is/tollgate/internal/clock"
	"grimm.is/tollgate/internal/events"
	"grimm.is/tollgate/internal/logging"
	"grimm.is/tollgate/internal/metrics"
)

// Decision is the outcome of Engine.Evaluate.
type Decision struct {
	Action Action
	// Rule is the matching rule, nil unless Source is SourceRule.
	Rule *Rule
	// Source is one of SourceWhitelist, SourceBlacklist, SourceRule, SourceDefault.
	Source string
}

// RuleName returns the deciding rule's name, or the source tag when no rule
// was involved.
func (d Decision) RuleName() string {
	if d.Rule != nil {
		return d.Rule.Name
	}
	return d.Source
}

// Allowed reports whether the decision lets traffic through.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Engine owns the rule list, whitelist, blacklist, default action and the
// bounded decision log. All methods are safe for concurrent use.
type Engine struct {
	mu            sync.RWMutex
	rules         []*Rule
	whitelist     []AddressPattern
	blacklist     []AddressPattern
	defaultAction Action

	logs    *LogBuffer
	logger  *logging.Logger
	clock   clock.Clock
	hub     *events.Hub
	metrics *metrics.Registry
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogLimit sets the ring buffer capacity. Default: 1000 records.
func WithLogLimit(n int) EngineOption {
	return func(e *Engine) {
		e.logs = NewLogBuffer(n)
	}
}

// WithLogger sets the structured log sink decisions are written to.
func WithLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the time source used to stamp records.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithEventHub publishes every record to hub as an EventDecision.
func WithEventHub(hub *events.Hub) EngineOption {
	return func(e *Engine) {
		e.hub = hub
	}
}

// WithMetrics sets the metrics registry. Default: metrics.Get().
func WithMetrics(r *metrics.Registry) EngineOption {
	return func(e *Engine) {
		e.metrics = r
	}
}

// NewEngine creates an engine with the given default action.
func NewEngine(defaultAction Action, opts ...EngineOption) *Engine {
	e := &Engine{
		defaultAction: defaultAction,
		logs:          NewLogBuffer(DefaultLogLimit),
		clock:         clock.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.WithComponent("firewall")
	}
	if e.metrics == nil {
		e.metrics = metrics.Get()
	}
	return e
}

// Logger returns the engine's log sink. The proxy reports transport errors
// through it.
func (e *Engine) Logger() *logging.Logger {
	return e.logger
}

// Metrics returns the registry the engine records into.
func (e *Engine) Metrics() *metrics.Registry {
	return e.metrics
}

// AddRule appends rule, or inserts it before position index when one is
// given. Out of range indexes are clamped. Names are not checked for
// uniqueness.
func (e *Engine) AddRule(rule *Rule, index ...int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(index) == 0 {
		e.rules = append(e.rules, rule)
		return
	}
	i := min(max(index[0], 0), len(e.rules))
	e.rules = slices.Insert(e.rules, i, rule)
}

// RemoveRule removes the first rule named name. It reports whether one was
// found. Later rules with the same name are left in place.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.Name == name {
			e.rules = slices.Delete(e.rules, i, i+1)
			return true
		}
	}
	return false
}

// ClearRules removes every rule.
func (e *Engine) ClearRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
}

// ExtendRules appends rules in order.
func (e *Engine) ExtendRules(rules []*Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rules...)
}

// Rules returns a snapshot of the rule list in evaluation order.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.rules)
}

// AddWhitelist appends a whitelist entry.
func (e *Engine) AddWhitelist(p AddressPattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelist = append(e.whitelist, p)
}

// AddBlacklist appends a blacklist entry.
func (e *Engine) AddBlacklist(p AddressPattern) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blacklist = append(e.blacklist, p)
}

// ClearWhitelist removes every whitelist entry.
func (e *Engine) ClearWhitelist() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.whitelist = nil
}

// ClearBlacklist removes every blacklist entry.
func (e *Engine) ClearBlacklist() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blacklist = nil
}

// Whitelist returns a snapshot of the whitelist.
func (e *Engine) Whitelist() []AddressPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.whitelist)
}

// Blacklist returns a snapshot of the blacklist.
func (e *Engine) Blacklist() []AddressPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.blacklist)
}

// SetDefaultAction sets the action applied when nothing else matches.
func (e *Engine) SetDefaultAction(a Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultAction = a
}

// DefaultAction returns the current default action.
func (e *Engine) DefaultAction() Action {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaultAction
}

// Evaluate classifies packet. The first hit wins:
//
//  1. a whitelist entry matching the source: ALLOW
//  2. a blacklist entry matching the source: DENY
//  3. the first rule in list order that matches: its action
//  4. otherwise the default action
func (e *Engine) Evaluate(packet PacketInfo) Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, p := range e.whitelist {
		if p.Matches(packet) {
			return Decision{Action: ActionAllow, Source: SourceWhitelist}
		}
	}
	for _, p := range e.blacklist {
		if p.Matches(packet) {
			return Decision{Action: ActionDeny, Source: SourceBlacklist}
		}
	}
	for _, r := range e.rules {
		if r.Matches(packet) {
			return Decision{Action: r.Action, Rule: r, Source: SourceRule}
		}
	}
	return Decision{Action: e.defaultAction, Source: SourceDefault}
}

// CreateLogRecord stamps a record, appends it to the ring buffer, writes it
// to the structured log and publishes it to the event hub.
func (e *Engine) CreateLogRecord(packet PacketInfo, action Action, ruleName, message string) LogRecord {
	record := LogRecord{
		Timestamp: e.clock.Now(),
		Packet:    packet.Snapshot(),
		Action:    action,
		RuleName:  ruleName,
		Message:   message,
	}
	e.logs.Add(record)

	e.logger.Info(string(action)+" "+packet.Src()+" -> "+packet.Dst(),
		"protocol", packet.Protocol.String(),
		"rule", ruleName,
		"message", message,
	)

	e.metrics.LogRecords.Inc()
	if e.hub != nil {
		e.hub.Publish(events.Event{
			Type:      events.EventDecision,
			Timestamp: record.Timestamp,
			Source:    "firewall",
			Data:      record.Export(),
		})
	}
	return record
}

// Record logs decision d for packet with message and counts it in the
// decision metrics. Callers use it right after Evaluate.
func (e *Engine) Record(packet PacketInfo, d Decision, message string) LogRecord {
	ruleName := ""
	if d.Rule != nil {
		ruleName = d.Rule.Name
	}
	e.metrics.RecordDecision(packet.Protocol.String(), d.Action.String(), d.Source, ruleName)
	return e.CreateLogRecord(packet, d.Action, d.RuleName(), message)
}

// RecentLogs returns every buffered record, oldest first.
func (e *Engine) RecentLogs() []LogRecord {
	return e.logs.GetAll()
}

// LastLogs returns the n most recent records, oldest first.
func (e *Engine) LastLogs(n int) []LogRecord {
	return e.logs.GetLast(n)
}

// LogLimit returns the ring buffer capacity.
func (e *Engine) LogLimit() int {
	return e.logs.Cap()
}
