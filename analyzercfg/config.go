// Package analyzercfg loads the analyzer binary's configuration: its own
// identity, the config store connection, and the active-flag poll
// interval.
package analyzercfg

import (
	"os"
	"strconv"
	"time"

	"github.com/arclight-systems/logdist/core"
)

// Config holds everything cmd/analyzer needs to start serving.
type Config struct {
	Port int `json:"port" env:"PORT" default:"9090"`

	// Name identifies this analyzer in the config store and in every
	// sink line it emits ("<name>: <message> - I was analyzed!").
	Name string `json:"name" env:"ANALYZER_NAME" default:"analyzer1"`

	RedisURL      string        `json:"redis_url" env:"LOGDIST_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
	ConfigStoreNS string        `json:"config_store_namespace" env:"CONFIG_STORE_NAMESPACE" default:"logdist"`
	PollInterval  time.Duration `json:"poll_interval" env:"POLL_SECS" default:"2s"`

	Logging     core.LoggingConfig
	Development core.DevelopmentConfig

	logger core.Logger
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Port:          9090,
		Name:          "analyzer1",
		RedisURL:      "redis://localhost:6379",
		ConfigStoreNS: "logdist",
		PollInterval:  2 * time.Second,
		Logging:       core.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// WithLogger attaches a logger for Debug-level field-by-field tracing.
func (c *Config) WithLogger(logger core.Logger) *Config {
	c.logger = logger
	return c
}

func (c *Config) debugf(setting, source string) {
	if c.logger != nil {
		c.logger.Debug("configuration loaded", map[string]interface{}{
			"setting": setting,
			"source":  source,
		})
	}
}

func lookupEnv(names ...string) (string, bool) {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v, true
		}
	}
	return "", false
}

// LoadFromEnv overlays environment variables onto c.
func (c *Config) LoadFromEnv() error {
	if v, ok := lookupEnv("PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
			c.debugf("port", "PORT")
		}
	}
	if v, ok := lookupEnv("ANALYZER_NAME"); ok {
		c.Name = v
		c.debugf("name", "ANALYZER_NAME")
	}
	if v, ok := lookupEnv("LOGDIST_REDIS_URL", "REDIS_URL"); ok {
		c.RedisURL = v
		c.debugf("redis_url", "LOGDIST_REDIS_URL|REDIS_URL")
	}
	if v, ok := lookupEnv("CONFIG_STORE_NAMESPACE"); ok {
		c.ConfigStoreNS = v
		c.debugf("config_store_namespace", "CONFIG_STORE_NAMESPACE")
	}
	if v, ok := lookupEnv("POLL_SECS"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			c.PollInterval = time.Duration(secs) * time.Second
			c.debugf("poll_interval", "POLL_SECS")
		}
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookupEnv("LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	if v, ok := lookupEnv("LOG_OUTPUT"); ok {
		c.Logging.Output = v
	}
	if v, ok := lookupEnv("DEV_MODE"); ok {
		c.Development.Enabled = v == "true"
	}
	if v, ok := lookupEnv("DEBUG"); ok {
		c.Development.DebugLogging = v == "true"
	}
	return nil
}

// Validate enforces the startup invariants: a non-empty identity and a
// strictly positive poll interval.
func (c *Config) Validate() error {
	if c.Name == "" {
		return core.NewFrameworkError("analyzercfg.Validate", "config", core.ErrMissingConfiguration)
	}
	if c.PollInterval <= 0 {
		return core.NewFrameworkError("analyzercfg.Validate", "config", core.ErrInvalidConfiguration)
	}
	return nil
}

// Load builds a Config from defaults, then environment variables, then
// validation. This is the analyzer binary's entry point into this package.
func Load(logger core.Logger) (*Config, error) {
	c := Default().WithLogger(logger)
	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
