package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/romangod6/sitemap-extractor/internal/crawler"
	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Driver string
		URL    string
	}
	Server struct {
		Port int
	}
	Extractor struct {
		UserAgent     string
		Timeout       string
		MaxDepth      int
		MaxBodySize   int
		FailurePolicy string
		Concurrency   int
		MaxEntries    int
	}
	Logging struct {
		Dir   string
		Debug bool
	}
}

const defaultTimeout = 30 * time.Second

// LoadConfig reads config.yaml from the working directory or ./config.
// A missing file is not an error; defaults and SITEMAP_* environment
// variables still apply.
func LoadConfig() (*Config, error) {
	return load(viper.New(), ".", "./config")
}

// LoadConfigFrom is LoadConfig with explicit search paths.
func LoadConfigFrom(paths ...string) (*Config, error) {
	return load(viper.New(), paths...)
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("sitemap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Default values
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "sitemap_extractor.db")
	v.SetDefault("extractor.useragent", "Sitemap Extractor Bot v1.0")
	v.SetDefault("extractor.timeout", "30s")
	v.SetDefault("extractor.maxdepth", 5)
	v.SetDefault("extractor.maxbodysize", 50*1024*1024)
	v.SetDefault("extractor.failurepolicy", "skip")
	v.SetDefault("extractor.concurrency", 1)
	v.SetDefault("extractor.maxentries", 0)
	v.SetDefault("logging.dir", "logs")
	v.SetDefault("logging.debug", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) GetTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Extractor.Timeout)
	if err != nil || timeout <= 0 {
		return defaultTimeout
	}
	return timeout
}

func (c *Config) CollectorConfig() *crawler.CollectorConfig {
	return &crawler.CollectorConfig{
		UserAgent:   c.Extractor.UserAgent,
		Timeout:     c.GetTimeout(),
		MaxBodySize: c.Extractor.MaxBodySize,
	}
}

// ExtractorOptions are the resolver defaults; requests may override them.
func (c *Config) ExtractorOptions() (crawler.Options, error) {
	policy, err := crawler.ParseFailurePolicy(c.Extractor.FailurePolicy)
	if err != nil {
		return crawler.Options{}, fmt.Errorf("extractor.failurepolicy: %w", err)
	}

	return crawler.Options{
		MaxDepth:      c.Extractor.MaxDepth,
		FailurePolicy: policy,
		Concurrency:   c.Extractor.Concurrency,
		MaxEntries:    c.Extractor.MaxEntries,
	}, nil
}
