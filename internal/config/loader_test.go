package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleRecords_List(t *testing.T) {
	records, err := ParseRuleRecords([]byte(`
- name: web
  action: allow
  protocol: tcp
  dst_port: "80-443"
- name: payload
  pattern: "(?i)drop table"
  description: sql injection guard
`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "web", records[0].Name)
	assert.Equal(t, "allow", records[0].Action)
	assert.Equal(t, "80-443", records[0].DstPort)
	assert.Equal(t, "(?i)drop table", records[1].Pattern)
	assert.Equal(t, "sql injection guard", records[1].Description)
}

func TestParseRuleRecords_JSONDocument(t *testing.T) {
	records, err := ParseRuleRecords([]byte(`{"rules": [
  {"name": "a", "action": "DENY", "src_ip": "10.0.0.0/8"},
  {"name": "b", "dst_port": 53}
]}`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "10.0.0.0/8", records[0].SrcIP)
	assert.Equal(t, "53", records[1].DstPort)
}

func TestParseRuleRecords_Empty(t *testing.T) {
	records, err := ParseRuleRecords(nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseRuleRecords_Garbage(t *testing.T) {
	_, err := ParseRuleRecords([]byte("rules: [unterminated"))
	assert.Error(t, err)
}
