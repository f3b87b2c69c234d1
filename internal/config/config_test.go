package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{TokenURL: DefaultTokenURL, Workers: 4}
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, errContains: "workers must be at least 1"},
		{name: "token url without placeholder", mutate: func(c *Config) { c.TokenURL = "https://x/tokens" }, errContains: "token-url"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -1 }, errContains: "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultCatalogURL, cfg.CatalogURL)
	require.Equal(t, DefaultWorkers, cfg.Workers)
	require.Equal(t, DefaultUserAgent, cfg.UserAgent)
	require.Equal(t, 60*time.Second, cfg.GetTimeout())
	require.Equal(t, "https://api-us.cloud.com/cctrustoauth2/c1/tokens/clients", cfg.GetTokenURL("c1"))
	require.Equal(t, filepath.Join(os.Getenv("HOME"), ".cxcli", "apispecs"), cfg.CacheDir)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 8\ncache-dir: /tmp/specs\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "/tmp/specs", cfg.CacheDir)
	require.Equal(t, DefaultTokenURL, cfg.TokenURL)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0600))

	_, err := Load(path)
	require.ErrorContains(t, err, "workers")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "reading config file")
}

func TestEnvOverrides(t *testing.T) {
	cfg := &Config{CacheDir: "/from/file", CatalogURL: "https://file/catalog.json"}
	require.Equal(t, "/from/file", cfg.GetCacheDir())
	require.Equal(t, "https://file/catalog.json", cfg.GetCatalogURL())

	t.Setenv("CXCLI_CACHE_DIR", "/from/env")
	t.Setenv("CXCLI_CATALOG_URL", "https://env/catalog.json")
	require.Equal(t, "/from/env", cfg.GetCacheDir())
	require.Equal(t, "https://env/catalog.json", cfg.GetCatalogURL())
}
