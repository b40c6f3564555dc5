package reso

import "time"

// Config holds connection settings for the upstream RESO Web API
type Config struct {
	BaseURL string `toml:"base_url"`
	// APIKey is sent as a static bearer token, or used as the client id when TokenURL is set
	APIKey    string        `toml:"api_key"`
	APISecret string        `toml:"api_secret"`
	TokenURL  string        `toml:"token_url"`
	Scopes    []string      `toml:"scopes"`
	Filter    string        `toml:"filter"`
	Select    []string      `toml:"select"`
	Timeout   time.Duration `toml:"timeout"`
}

// DefaultConfig returns the client defaults
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}
