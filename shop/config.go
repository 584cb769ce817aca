package shop

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is time.Duration with YAML support ("30s", "24h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

// Config of the client. Every knob has a sensible default; only the base
// URL is required.
type Config struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	DataDir string `yaml:"data_dir"`

	Timeout Duration `yaml:"timeout"`
	// Retries of -1 disables retries; 0 selects the default.
	Retries    int      `yaml:"retries" validate:"gte=-1"`
	RetryDelay Duration `yaml:"retry_delay"`

	CatalogTTL       Duration `yaml:"catalog_ttl"`
	CatalogMirrorTTL Duration `yaml:"catalog_mirror_ttl"`
	ProductCacheSize int      `yaml:"product_cache_size" validate:"gte=0"`
	ProductTTL       Duration `yaml:"product_ttl"`
	ProfileTTL       Duration `yaml:"profile_ttl"`
}

const (
	defaultCatalogTTL       = 30 * time.Minute
	defaultCatalogMirrorTTL = 24 * time.Hour
	defaultProductCacheSize = 100
	defaultProductTTL       = 10 * time.Minute
	defaultProfileTTL       = 5 * time.Minute
)

// LoadConfigFile reads a YAML config with environment variables expanded,
// then validates it.
func LoadConfigFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	cfg := new(Config)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) productCacheSize() int {
	if c.ProductCacheSize == 0 {
		return defaultProductCacheSize
	}
	return c.ProductCacheSize
}
