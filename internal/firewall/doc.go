// Package firewall implements the packet classification engine.
//
// # Overview
//
// An [Engine] holds an ordered rule list, a whitelist, a blacklist and a
// default action. [Engine.Evaluate] classifies a [PacketInfo] and
// [Engine.CreateLogRecord] records the outcome in a bounded ring buffer and
// the structured log.
//
// # Decision precedence
//
//	whitelist > blacklist > rules (first match, list order) > default action
//
// Whitelist and blacklist entries ([AddressPattern]) only look at the source
// endpoint. A [Rule] checks protocol, source and destination address and
// port conditions, then an optional content regular expression over the
// payload.
//
// # Conditions
//
// Address and port conditions are kept as text and resolved on every match
// by [MatchIP] and [MatchPort]. Malformed conditions never fail; they simply
// do not match.
//
// # Example
//
//	engine := firewall.NewEngine(firewall.ActionAllow)
//	engine.AddRule(&firewall.Rule{Name: "block-8080", Action: firewall.ActionDeny,
//		Protocol: firewall.ProtocolTCP, DstPort: "8080"})
//	d := engine.Evaluate(pkt)
//	engine.CreateLogRecord(pkt, d.Action, d.RuleName(), "connection request")
package firewall
