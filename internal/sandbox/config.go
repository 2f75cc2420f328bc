// File path: internal/sandbox/config.go
package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config controls the execution-target client.
type Config struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`

	Timeout       time.Duration `json:"-"`
	TimeoutString string        `json:"timeout"`

	RestartWait       time.Duration `json:"-"`
	RestartWaitString string        `json:"restart_wait"`
}

func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.BaseURL) != "" {
		result.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		result.APIKey = override.APIKey
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if strings.TrimSpace(override.TimeoutString) != "" {
		result.TimeoutString = strings.TrimSpace(override.TimeoutString)
	}
	if override.RestartWait > 0 {
		result.RestartWait = override.RestartWait
	}
	if strings.TrimSpace(override.RestartWaitString) != "" {
		result.RestartWaitString = strings.TrimSpace(override.RestartWaitString)
	}
	return result
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("SANDBOX_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(loadConfigEnv())
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "http://localhost:4200"
	}
	if c.Timeout <= 0 {
		if c.TimeoutString != "" {
			if parsed, err := time.ParseDuration(c.TimeoutString); err == nil {
				c.Timeout = parsed
			}
		}
		if c.Timeout <= 0 {
			c.Timeout = 30 * time.Second
		}
	}
	if c.RestartWait <= 0 {
		if c.RestartWaitString != "" {
			if parsed, err := time.ParseDuration(c.RestartWaitString); err == nil {
				c.RestartWait = parsed
			}
		}
		if c.RestartWait <= 0 {
			c.RestartWait = 15 * time.Second
		}
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read sandbox config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse sandbox config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() Config {
	cfg := Config{}
	if url := strings.TrimSpace(os.Getenv("SANDBOX_URL")); url != "" {
		cfg.BaseURL = url
	}
	if apiKey := strings.TrimSpace(os.Getenv("SANDBOX_API_KEY")); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if timeout := strings.TrimSpace(os.Getenv("SANDBOX_TIMEOUT")); timeout != "" {
		cfg.TimeoutString = timeout
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = parsed
		}
	}
	if wait := strings.TrimSpace(os.Getenv("SANDBOX_RESTART_WAIT")); wait != "" {
		cfg.RestartWaitString = wait
		if parsed, err := time.ParseDuration(wait); err == nil {
			cfg.RestartWait = parsed
		}
	}
	return cfg
}
