package firewall

import (
	"errors"
	"fmt"
)

// RuleRecord is the loosely typed form of a rule used by bulk loading.
// Missing fields default to action DENY, protocol ANY, name "rule", an empty
// description, and "match anything" for every condition.
type RuleRecord struct {
	Name        string `json:"name" yaml:"name"`
	Action      string `json:"action,omitempty" yaml:"action,omitempty"`
	Protocol    string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	SrcIP       string `json:"src_ip,omitempty" yaml:"src_ip,omitempty"`
	SrcPort     string `json:"src_port,omitempty" yaml:"src_port,omitempty"`
	DstIP       string `json:"dst_ip,omitempty" yaml:"dst_ip,omitempty"`
	DstPort     string `json:"dst_port,omitempty" yaml:"dst_port,omitempty"`
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// BuildRule converts a record into a Rule, validating the enum fields and
// compiling the content pattern.
func BuildRule(rec RuleRecord) (*Rule, error) {
	name := rec.Name
	if name == "" {
		name = "rule"
	}

	action := ActionDeny
	if rec.Action != "" {
		a, err := ParseAction(rec.Action)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		action = a
	}

	protocol := ProtocolAny
	if rec.Protocol != "" {
		p, err := ParseProtocol(rec.Protocol)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		protocol = p
	}

	rule := &Rule{
		Name:        name,
		Action:      action,
		Protocol:    protocol,
		SrcIP:       rec.SrcIP,
		SrcPort:     rec.SrcPort,
		DstIP:       rec.DstIP,
		DstPort:     rec.DstPort,
		Pattern:     rec.Pattern,
		Description: rec.Description,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// BuildRules converts records in order. Every failing record is reported;
// the returned slice holds only the rules that built.
func BuildRules(records []RuleRecord) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(records))
	var errs []error
	for i, rec := range records {
		r, err := BuildRule(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		rules = append(rules, r)
	}
	return rules, errors.Join(errs...)
}

// LoadRules builds every record and appends the rules to the engine. Nothing
// is appended if any record is invalid.
func (e *Engine) LoadRules(records []RuleRecord) error {
	rules, err := BuildRules(records)
	if err != nil {
		return err
	}
	e.ExtendRules(rules)
	return nil
}

// Record returns the loosely typed form of r, the inverse of BuildRule.
func (r *Rule) Record() RuleRecord {
	return RuleRecord{
		Name:        r.Name,
		Action:      r.Action.String(),
		Protocol:    r.Protocol.String(),
		SrcIP:       r.SrcIP,
		SrcPort:     r.SrcPort,
		DstIP:       r.DstIP,
		DstPort:     r.DstPort,
		Pattern:     r.Pattern,
		Description: r.Description,
	}
}
