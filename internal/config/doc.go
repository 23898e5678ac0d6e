// Package config handles HCL configuration parsing, validation, and rule
// file loading.
//
// # Configuration Blocks
//
// Main HCL blocks:
//   - proxy: listen and target endpoints, enabled transports
//   - engine: default action and log ring buffer size
//   - whitelist / blacklist: source address patterns
//   - rule "<name>": ordered firewall rules
//   - api: HTTP control surface
//   - logging: level and output format
//
// The top-level rules_file attribute names a YAML or JSON file of rule
// records appended after the inline rules. Relative paths resolve against
// the directory of the config file.
//
// Expressions can read the process environment through the env object:
//
//	proxy {
//	  target_host = env.BACKEND_HOST
//	}
package config
