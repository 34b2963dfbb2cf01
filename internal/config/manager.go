package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = ".phospho"
	ConfigFileName = "config.yaml"
	CacheDirName   = "cache"

	DefaultAPIURL        = "https://api.phospho.ai"
	DefaultServeAddr     = ":8089"
	DefaultCacheTTLHours = 1

	// EnvHome overrides the config directory
	EnvHome      = "PHOSPHO_HOME"
	EnvAPIURL    = "PHOSPHO_API_URL"
	EnvAPIKey    = "PHOSPHO_API_KEY"
	EnvProjectID = "PHOSPHO_PROJECT_ID"
	EnvServeAddr = "PHOSPHO_SERVE_ADDR"
	EnvCacheTTL  = "PHOSPHO_CACHE_TTL_HOURS"
)

// GetConfigDir returns the path to the config directory (~/.phospho)
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ConfigDirName), nil
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetCacheDir returns the directory holding per-project cache databases
func GetCacheDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, CacheDirName), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(configDir, 0700)
}

// LoadConfig reads the configuration file as stored on disk
func LoadConfig() (*AppConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &AppConfig{
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration file
func SaveConfig(config *AppConfig) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	config.UpdatedAt = time.Now()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = time.Now()
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// The file holds the API key: user read/write only
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Resolve returns the effective configuration: the config file, then a
// .env file in the working directory, then the process environment.
// Defaults fill whatever is still unset.
func Resolve() (*AppConfig, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	// A missing .env file is not an error
	_ = godotenv.Load()

	applyEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyEnv(config *AppConfig) {
	if v := os.Getenv(EnvAPIURL); v != "" {
		config.APIURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		config.APIKey = v
	}
	if v := os.Getenv(EnvProjectID); v != "" {
		config.ProjectID = v
	}
	if v := os.Getenv(EnvServeAddr); v != "" {
		config.ServeAddr = v
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		if hours, err := strconv.Atoi(v); err == nil {
			config.CacheTTLHours = hours
		}
	}
}

func applyDefaults(config *AppConfig) {
	if config.APIURL == "" {
		config.APIURL = DefaultAPIURL
	}
	if config.ServeAddr == "" {
		config.ServeAddr = DefaultServeAddr
	}
	if config.CacheTTLHours <= 0 {
		config.CacheTTLHours = DefaultCacheTTLHours
	}
}

// SetCredentials stores the backend URL and API key
func SetCredentials(apiURL, apiKey string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if apiURL != "" {
		config.APIURL = apiURL
	}
	if apiKey != "" {
		config.APIKey = apiKey
	}

	if err := SaveConfig(config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// SetActiveProject switches the active project. It reports whether the
// project actually changed, in which case any query being edited belongs
// to the previous project and must be reset.
func SetActiveProject(projectID string) (bool, error) {
	config, err := LoadConfig()
	if err != nil {
		return false, fmt.Errorf("failed to load config: %w", err)
	}

	changed := config.ProjectID != projectID
	config.ProjectID = projectID

	if err := SaveConfig(config); err != nil {
		return false, fmt.Errorf("failed to save config: %w", err)
	}

	return changed, nil
}

// GetActiveProject returns the active project ID, environment included
func GetActiveProject() (string, error) {
	config, err := Resolve()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return config.ProjectID, nil
}
