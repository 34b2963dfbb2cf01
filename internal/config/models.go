package config

import "time"

// AppConfig holds global application configuration
type AppConfig struct {
	APIURL        string    `json:"api_url,omitempty" yaml:"api_url,omitempty"`       // Backend root, defaults to the hosted API
	APIKey        string    `json:"api_key,omitempty" yaml:"api_key,omitempty"`       // Project API key
	ProjectID     string    `json:"project_id,omitempty" yaml:"project_id,omitempty"` // Active project
	ServeAddr     string    `json:"serve_addr,omitempty" yaml:"serve_addr,omitempty"` // Listen address of 'phospho serve'
	CacheTTLHours int       `json:"cache_ttl_hours,omitempty" yaml:"cache_ttl_hours,omitempty"`
	CacheDisabled bool      `json:"cache_disabled,omitempty" yaml:"cache_disabled,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

// MaskedAPIKey returns the API key with everything but the last four
// characters hidden
func (c *AppConfig) MaskedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return "****" + c.APIKey[len(c.APIKey)-4:]
}
