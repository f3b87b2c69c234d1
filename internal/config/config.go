package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultCatalogBaseURL = "https://developer-data.cloud.com/master"
	DefaultCatalogURL     = DefaultCatalogBaseURL + "/all_site_data.json"
	DefaultTokenURL       = "https://api-us.cloud.com/cctrustoauth2/%s/tokens/clients"
	DefaultReleasesURL    = "https://releasesapi.citrixworkspacesapi.net/%s/releases"
	DefaultUserAgent      = "cxcli/0.1"
	DefaultWorkers        = 4
	DefaultTimeout        = 60

	configDirName  = ".cxcli"
	configFileName = "config.yaml"
	specDirName    = "apispecs"
)

type Config struct {
	CatalogURL     string `koanf:"catalog-url"`
	CatalogBaseURL string `koanf:"catalog-base-url"`
	TokenURL       string `koanf:"token-url"`
	ReleasesURL    string `koanf:"releases-url"`
	CacheDir       string `koanf:"cache-dir"`
	Workers        int    `koanf:"workers"`
	Timeout        int    `koanf:"timeout"`
	UserAgent      string `koanf:"user-agent"`
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDirName), nil
}

func defaults() map[string]any {
	m := map[string]any{
		"catalog-url":      DefaultCatalogURL,
		"catalog-base-url": DefaultCatalogBaseURL,
		"token-url":        DefaultTokenURL,
		"releases-url":     DefaultReleasesURL,
		"workers":          DefaultWorkers,
		"timeout":          DefaultTimeout,
		"user-agent":       DefaultUserAgent,
	}
	if dir, err := Dir(); err == nil {
		m["cache-dir"] = filepath.Join(dir, specDirName)
	}
	return m
}

// Load reads the configuration. An empty path selects ~/.cxcli/config.yaml,
// which is optional; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		if dir, err := Dir(); err == nil {
			candidate := filepath.Join(dir, configFileName)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if !strings.Contains(c.TokenURL, "%s") {
		return fmt.Errorf("token-url must contain %%s for the customer id: %s", c.TokenURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", c.Timeout)
	}
	return nil
}

func (c *Config) GetCacheDir() string {
	if dir := os.Getenv("CXCLI_CACHE_DIR"); dir != "" {
		return dir
	}
	return c.CacheDir
}

func (c *Config) GetCatalogURL() string {
	if url := os.Getenv("CXCLI_CATALOG_URL"); url != "" {
		return url
	}
	if c.CatalogURL != "" {
		return c.CatalogURL
	}
	return DefaultCatalogURL
}

// GetTokenURL returns the token endpoint for customerID.
func (c *Config) GetTokenURL(customerID string) string {
	tmpl := c.TokenURL
	if tmpl == "" {
		tmpl = DefaultTokenURL
	}
	return fmt.Sprintf(tmpl, customerID)
}

func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
