// Package brand provides centralized branding constants for the proxy.
package brand

import (
	"os"
	"path/filepath"
)

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
}

var b = Brand{
	Name:             "Tollgate",
	LowerName:        "tollgate",
	Description:      "Rule-based TCP/UDP interception proxy",
	ConfigEnvPrefix:  "TOLLGATE",
	DefaultConfigDir: "/etc/tollgate",
	BinaryName:       "tollgate",
	ConfigFileName:   "tollgate.hcl",
}

// Exported variables for convenience
var (
	Name             = b.Name
	LowerName        = b.LowerName
	Description      = b.Description
	ConfigEnvPrefix  = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	BinaryName       = b.BinaryName
	ConfigFileName   = b.ConfigFileName

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns the product token sent in HTTP Server headers.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// GetConfigDir returns the config directory, checking env vars first.
// Priority: TOLLGATE_CONFIG_DIR > TOLLGATE_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, "config")
	}
	return DefaultConfigDir
}

// DefaultConfigPath returns the config file path used when none is given.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
