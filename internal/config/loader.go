package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"grimm.is/tollgate/internal/firewall"
)

// ruleFile accepts either a bare list of records or a document with a
// top-level rules key.
type ruleFile struct {
	Rules []firewall.RuleRecord `yaml:"rules"`
}

// LoadRuleRecords reads a YAML or JSON rule file. Records are returned
// unvalidated; firewall.BuildRules reports bad entries.
func LoadRuleRecords(path string) ([]firewall.RuleRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	records, err := ParseRuleRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseRuleRecords decodes rule records from YAML or JSON source.
func ParseRuleRecords(data []byte) ([]firewall.RuleRecord, error) {
	var list []firewall.RuleRecord
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return doc.Rules, nil
}
