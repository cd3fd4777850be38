package config

const defaultInactivityTimeoutSeconds = 120

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.API.InactivityTimeoutSeconds <= 0 {
		c.API.InactivityTimeoutSeconds = defaultInactivityTimeoutSeconds
	}
}
