package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort                 = 443
	DefaultEndpoint             = "/v1/connect"
	DefaultConnectTimeout       = 30 * time.Second
	DefaultAgeCutoff            = 5 * time.Minute
	DefaultCooldownGrowthFactor = 10.0
	DefaultCountGrowthFactor    = 10.0
	DefaultMaxCount             = 5
	DefaultMaxDelay             = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Service.Port == 0 {
		c.Service.Port = DefaultPort
	}
	if c.Service.Endpoint == "" {
		c.Service.Endpoint = DefaultEndpoint
	}

	if c.Connect.Timeout == 0 {
		c.Connect.Timeout = DefaultConnectTimeout
	}
	if c.Connect.AgeCutoff == 0 {
		c.Connect.AgeCutoff = DefaultAgeCutoff
	}
	if c.Connect.CooldownGrowthFactor == 0 {
		c.Connect.CooldownGrowthFactor = DefaultCooldownGrowthFactor
	}
	if c.Connect.CountGrowthFactor == 0 {
		c.Connect.CountGrowthFactor = DefaultCountGrowthFactor
	}
	if c.Connect.MaxCount == 0 {
		c.Connect.MaxCount = DefaultMaxCount
	}
	if c.Connect.MaxDelay == 0 {
		c.Connect.MaxDelay = DefaultMaxDelay
	}
}
