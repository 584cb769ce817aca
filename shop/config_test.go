package shop_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lookbook-shop/client-go/shop"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lookbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
base_url: https://api.lookbook.example
data_dir: /tmp/lookbook
timeout: 5s
retries: 2
retry_delay: 250ms
catalog_ttl: 15m
catalog_mirror_ttl: 12h
product_cache_size: 50
`)

	cfg, err := shop.LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.lookbook.example", cfg.BaseURL)
	assert.Equal(t, shop.Duration(5*time.Second), cfg.Timeout)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, shop.Duration(250*time.Millisecond), cfg.RetryDelay)
	assert.Equal(t, shop.Duration(15*time.Minute), cfg.CatalogTTL)
	assert.Equal(t, shop.Duration(12*time.Hour), cfg.CatalogMirrorTTL)
	assert.Equal(t, 50, cfg.ProductCacheSize)
}

func TestLoadConfigFileExpandsEnv(t *testing.T) {
	t.Setenv("LOOKBOOK_TEST_BASE_URL", "https://staging.lookbook.example")
	path := writeConfig(t, "base_url: ${LOOKBOOK_TEST_BASE_URL}\n")

	cfg, err := shop.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://staging.lookbook.example", cfg.BaseURL)
}

func TestLoadConfigFileRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, "retries: 1\n")

	_, err := shop.LoadConfigFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoadConfigFileAdmitsDisabledRetries(t *testing.T) {
	path := writeConfig(t, "base_url: https://api.lookbook.example\nretries: -1\n")

	cfg, err := shop.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Retries)

	_, err = shop.LoadConfigFile(writeConfig(t, "base_url: https://api.lookbook.example\nretries: -2\n"))
	assert.Error(t, err)
}

func TestLoadConfigFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "base_url: https://api.lookbook.example\ntimeout: soon\n")

	_, err := shop.LoadConfigFile(path)
	assert.Error(t, err)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := shop.LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
