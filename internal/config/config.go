// Package config defines the yaml configuration surface for the connection
// engine and its diagnostic tooling.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Connect ConnectConfig `yaml:"connect"`
	Auth    AuthConfig    `yaml:"auth"`
}

// ServiceConfig describes the target service and its candidate paths.
type ServiceConfig struct {
	// Host is the service's direct hostname.
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// Endpoint is the WebSocket endpoint path.
	Endpoint string `yaml:"endpoint"`

	// PathPrefix is prepended to the endpoint on direct routes.
	PathPrefix string `yaml:"path_prefix"`

	// SNI overrides the TLS server name on direct routes. Empty means Host.
	SNI string `yaml:"sni"`

	// Fronts are alternative fronted paths to the same service.
	Fronts []FrontConfig `yaml:"fronts"`
}

// FrontConfig is one fronting provider entry.
type FrontConfig struct {
	// Name labels the front in logs and route descriptions.
	Name string `yaml:"name"`

	// Domain is the front's hostname: it is what gets resolved, dialed,
	// and presented as SNI.
	Domain string `yaml:"domain"`

	// HostHeader is the HTTP Host sent through the front.
	HostHeader string `yaml:"host_header"`

	// PathPrefix is the front's routing prefix.
	PathPrefix string `yaml:"path_prefix"`
}

// ConnectConfig holds the retry/backoff tuning for connection attempts.
type ConnectConfig struct {
	Timeout              time.Duration `yaml:"timeout"`
	AgeCutoff            time.Duration `yaml:"age_cutoff"`
	CooldownGrowthFactor float64       `yaml:"cooldown_growth_factor"`
	CountGrowthFactor    float64       `yaml:"count_growth_factor"`
	MaxCount             int           `yaml:"max_count"`
	MaxDelay             time.Duration `yaml:"max_delay"`
}

// AuthConfig holds the connection credentials.
type AuthConfig struct {
	KeyID  string `yaml:"key_id"`
	Secret string `yaml:"secret"`
}
