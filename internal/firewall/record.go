package firewall

import "time"

// Source tags used in place of a rule name when no rule decided a packet.
const (
	SourceWhitelist = "whitelist"
	SourceBlacklist = "blacklist"
	SourceRule      = "rule"
	SourceDefault   = "default"

	// SourceProxy tags decisions the proxy makes on its own, such as an
	// upstream dial failure.
	SourceProxy = "proxy"
)

// exportTimeLayout is ISO-8601 with second precision and no zone suffix.
const exportTimeLayout = "2006-01-02T15:04:05"

// LogRecord is one recorded decision.
type LogRecord struct {
	Timestamp time.Time
	Packet    PacketInfo
	Action    Action
	RuleName  string
	Message   string
}

// ExportedRecord is the external shape of a log record. Viewers and exports
// reproduce exactly these keys.
type ExportedRecord struct {
	Timestamp string `json:"timestamp"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Protocol  string `json:"protocol"`
	Action    string `json:"action"`
	Rule      string `json:"rule"`
	Message   string `json:"message"`
}

// Export converts the record to its external shape.
func (r LogRecord) Export() ExportedRecord {
	return ExportedRecord{
		Timestamp: r.Timestamp.Format(exportTimeLayout),
		Src:       r.Packet.Src(),
		Dst:       r.Packet.Dst(),
		Protocol:  r.Packet.Protocol.String(),
		Action:    r.Action.String(),
		Rule:      r.RuleName,
		Message:   r.Message,
	}
}

// ExportAll converts a slice of records, preserving order.
func ExportAll(records []LogRecord) []ExportedRecord {
	out := make([]ExportedRecord, len(records))
	for i, r := range records {
		out[i] = r.Export()
	}
	return out
}
