// File path: internal/data/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config controls construction of the service container.
type Config struct {
	MemoryPath   string
	VersionsPath string
}

// DefaultConfig returns the baseline paths used when no overrides are
// supplied.
func DefaultConfig() Config {
	return Config{
		MemoryPath:   filepath.Join("data", "conversations"),
		VersionsPath: filepath.Join("data", "versions.db"),
	}
}

// LoadConfig builds a Config from defaults and environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if value := strings.TrimSpace(os.Getenv("LOOM_MEMORY_PATH")); value != "" {
		cfg.MemoryPath = value
	}
	if value := strings.TrimSpace(os.Getenv("LOOM_VERSIONS_PATH")); value != "" {
		cfg.VersionsPath = value
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.MemoryPath) == "" {
		cfg.MemoryPath = defaults.MemoryPath
	}
	if strings.TrimSpace(cfg.VersionsPath) == "" {
		cfg.VersionsPath = defaults.VersionsPath
	}
	return cfg
}

func (c Config) validate() error {
	if strings.TrimSpace(c.MemoryPath) == "" {
		return fmt.Errorf("memory path required")
	}
	if strings.TrimSpace(c.VersionsPath) == "" {
		return fmt.Errorf("versions path required")
	}
	return nil
}
