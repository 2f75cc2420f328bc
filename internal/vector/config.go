// File path: internal/vector/config.go
package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config describes how to reach the ChromaDB backend. Values resolve in
// order: JSON config file, CHROMADB_* environment, defaults.
type Config struct {
	Host       string
	Port       string
	Scheme     string
	Collection string
	APIKey     string
	Timeout    time.Duration

	HTTPMaxIdleConns    int
	HTTPMaxIdlePerHost  int
	HTTPMaxConnsPerHost int
	HTTPIdleConnTimeout time.Duration
}

// fileConfig is the on-disk shape; durations travel as strings.
type fileConfig struct {
	Host                string `json:"host"`
	Port                string `json:"port"`
	Scheme              string `json:"scheme"`
	Collection          string `json:"collection"`
	APIKey              string `json:"api_key"`
	Timeout             string `json:"timeout"`
	HTTPMaxIdleConns    int    `json:"http_max_idle_conns"`
	HTTPMaxIdlePerHost  int    `json:"http_max_idle_per_host"`
	HTTPMaxConnsPerHost int    `json:"http_max_conns_per_host"`
	HTTPIdleConnTimeout string `json:"http_idle_conn_timeout"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CHROMADB_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read chromadb config: %w", err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse chromadb config: %w", err)
	}
	setString(&c.Host, fc.Host)
	setString(&c.Port, fc.Port)
	setString(&c.Scheme, fc.Scheme)
	setString(&c.Collection, fc.Collection)
	setString(&c.APIKey, fc.APIKey)
	if err := setDuration(&c.Timeout, fc.Timeout, "timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.HTTPIdleConnTimeout, fc.HTTPIdleConnTimeout, "http_idle_conn_timeout"); err != nil {
		return err
	}
	if fc.HTTPMaxIdleConns > 0 {
		c.HTTPMaxIdleConns = fc.HTTPMaxIdleConns
	}
	if fc.HTTPMaxIdlePerHost > 0 {
		c.HTTPMaxIdlePerHost = fc.HTTPMaxIdlePerHost
	}
	if fc.HTTPMaxConnsPerHost > 0 {
		c.HTTPMaxConnsPerHost = fc.HTTPMaxConnsPerHost
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Host, os.Getenv("CHROMADB_HOST"))
	setString(&c.Port, os.Getenv("CHROMADB_PORT"))
	setString(&c.Scheme, os.Getenv("CHROMADB_SCHEME"))
	setString(&c.Collection, os.Getenv("CHROMADB_COLLECTION"))
	setString(&c.APIKey, os.Getenv("CHROMADB_API_KEY"))
	if err := setDuration(&c.Timeout, os.Getenv("CHROMADB_TIMEOUT"), "CHROMADB_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.HTTPIdleConnTimeout, os.Getenv("CHROMADB_HTTP_IDLE_CONN_TIMEOUT"), "CHROMADB_HTTP_IDLE_CONN_TIMEOUT"); err != nil {
		return err
	}
	if err := setInt(&c.HTTPMaxIdleConns, os.Getenv("CHROMADB_HTTP_MAX_IDLE_CONNS"), "CHROMADB_HTTP_MAX_IDLE_CONNS"); err != nil {
		return err
	}
	if err := setInt(&c.HTTPMaxIdlePerHost, os.Getenv("CHROMADB_HTTP_MAX_IDLE_PER_HOST"), "CHROMADB_HTTP_MAX_IDLE_PER_HOST"); err != nil {
		return err
	}
	return setInt(&c.HTTPMaxConnsPerHost, os.Getenv("CHROMADB_HTTP_MAX_CONNS_PER_HOST"), "CHROMADB_HTTP_MAX_CONNS_PER_HOST")
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == "" {
		c.Port = "8000"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.Collection == "" {
		c.Collection = "loom_files"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HTTPMaxIdleConns <= 0 {
		c.HTTPMaxIdleConns = 64
	}
	if c.HTTPMaxIdlePerHost <= 0 {
		c.HTTPMaxIdlePerHost = 16
	}
	if c.HTTPIdleConnTimeout <= 0 {
		c.HTTPIdleConnTimeout = 90 * time.Second
	}
}

// setString assigns the trimmed value when non-empty, leaving dst alone
// otherwise so earlier sources are not clobbered by blanks.
func setString(dst *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*dst = trimmed
	}
}

func setDuration(dst *time.Duration, value, name string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if parsed > 0 {
		*dst = parsed
	}
	return nil
}

func setInt(dst *int, value, name string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if parsed > 0 {
		*dst = parsed
	}
	return nil
}
