package config

import "fmt"

// Validate checks the configuration for fields that would make the engine
// misbehave at runtime.
func (c *Config) Validate() error {
	if c.Service.Host == "" {
		return fmt.Errorf("service.host is required")
	}
	if c.Connect.Timeout <= 0 {
		return fmt.Errorf("connect.timeout must be positive")
	}
	if c.Connect.CooldownGrowthFactor < 1 {
		return fmt.Errorf("connect.cooldown_growth_factor must be >= 1")
	}
	if c.Connect.CountGrowthFactor <= 0 {
		return fmt.Errorf("connect.count_growth_factor must be positive")
	}
	if c.Connect.MaxCount < 1 || c.Connect.MaxCount > 255 {
		return fmt.Errorf("connect.max_count must be in [1, 255]")
	}
	if c.Connect.MaxDelay <= 0 {
		return fmt.Errorf("connect.max_delay must be positive")
	}
	for i, f := range c.Service.Fronts {
		if f.Name == "" {
			return fmt.Errorf("service.fronts[%d].name is required", i)
		}
		if f.Domain == "" {
			return fmt.Errorf("service.fronts[%d].domain is required", i)
		}
	}
	return nil
}
