// Package distributorcfg loads the distributor binary's configuration:
// defaults, then an optional static YAML/JSON file supplying the initial
// analyzer list and weights, then environment variables.
package distributorcfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arclight-systems/logdist/core"
)

// Config holds everything cmd/distributor needs to start serving.
type Config struct {
	// Port is the HTTP port the distributor listens on.
	Port int `json:"port" env:"PORT" default:"8080"`

	// Analyzers maps analyzer name -> base URL, derived from ANALYZERS
	// ("name:port" pairs) or a static config file.
	Analyzers map[string]string `json:"analyzers"`

	AnalyzerTimeout time.Duration `json:"analyzer_timeout" env:"ANALYZER_TIMEOUT_MS" default:"200ms"`

	DefaultWeights map[string]float64 `json:"default_weights"`

	WeightPollInterval time.Duration `json:"weight_poll_interval" env:"WEIGHT_POLL_SECS" default:"5s"`

	CBFailureThreshold         int           `json:"cb_failure_threshold" env:"CB_FAILURE_THRESHOLD" default:"3"`
	CBRecoveryTimeout          time.Duration `json:"cb_recovery_timeout" env:"CB_RECOVERY_TIMEOUT_SEC" default:"20s"`
	CBHalfOpenSuccessThreshold int           `json:"cb_half_open_success_threshold" env:"CB_HALF_OPEN_SUCC_THRESHOLD" default:"50"`

	RedisURL      string `json:"redis_url" env:"LOGDIST_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
	ConfigStoreNS string `json:"config_store_namespace" env:"CONFIG_STORE_NAMESPACE" default:"logdist"`

	ConfigFile string `json:"config_file" env:"LOGDIST_CONFIG_FILE"`

	Logging     core.LoggingConfig
	Development core.DevelopmentConfig
	// CORS starts from core.DefaultCORSConfig (disabled). LoadFromEnv does
	// not read the CORS_* variables named in core.CORSConfig's tags; the
	// setting changes only when set in code.
	CORS core.CORSConfig

	logger core.Logger
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Port:                       8080,
		Analyzers:                  map[string]string{},
		AnalyzerTimeout:            200 * time.Millisecond,
		DefaultWeights:             map[string]float64{},
		WeightPollInterval:         5 * time.Second,
		CBFailureThreshold:         3,
		CBRecoveryTimeout:          20 * time.Second,
		CBHalfOpenSuccessThreshold: 50,
		RedisURL:                   "redis://localhost:6379",
		ConfigStoreNS:              "logdist",
		Logging:                    core.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		CORS:                       *core.DefaultCORSConfig(),
	}
}

// WithLogger attaches a logger used while loading, for Debug-level
// field-by-field tracing of where each setting came from.
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

// parseAnalyzers parses the ANALYZERS env var format: a comma-separated
// list of "name:port" entries. The name doubles as the DNS hostname the
// distributor dials.
func parseAnalyzers(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, ":") {
			return nil, fmt.Errorf("%w: ANALYZERS entry, ':' not present in %q", core.ErrInvalidConfiguration, entry)
		}
		name, port, _ := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		port = strings.TrimSpace(port)
		out[name] = fmt.Sprintf("http://%s:%s", name, port)
	}
	return out, nil
}

// parseWeights parses "name:weight,..." pairs, per DEFAULT_WEIGHTS.
func parseWeights(raw string) (map[string]float64, error) {
	out := map[string]float64{}
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		if !strings.Contains(pair, ":") {
			return nil, fmt.Errorf("%w: DEFAULT_WEIGHTS pair, ':' not present in %q", core.ErrInvalidConfiguration, pair)
		}
		name, weightStr, _ := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		weight, err := strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: weight in pair %q: %v", core.ErrInvalidConfiguration, pair, err)
		}
		out[name] = weight
	}
	return out, nil
}

func lookupEnv(names ...string) (string, bool) {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v, true
		}
	}
	return "", false
}

// fileDocument is the shape of an optional static config file: an
// analyzer list plus default weights, read once before env vars and the
// live Config Watcher take over.
type fileDocument struct {
	Analyzers map[string]string  `yaml:"analyzers"`
	Weights   map[string]float64 `yaml:"weights"`
}

// LoadFromFile merges an optional static analyzer/weight document into c.
// It is applied before LoadFromEnv, so environment variables still win.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.NewFrameworkError("distributorcfg.LoadFromFile", "config", err)
	}
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return core.NewFrameworkError("distributorcfg.LoadFromFile", "config", fmt.Errorf("parse %s: %w", path, err))
	}
	for name, url := range doc.Analyzers {
		c.Analyzers[name] = url
	}
	for name, w := range doc.Weights {
		c.DefaultWeights[name] = w
	}
	c.debugf("analyzers,weights", path)
	return nil
}

// LoadFromEnv overlays environment variables onto c. ANALYZERS and
// DEFAULT_WEIGHTS, when present, replace (not merge into) whatever the
// static file populated.
func (c *Config) LoadFromEnv() error {
	if v, ok := lookupEnv("PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
			c.debugf("port", "PORT")
		}
	}

	if v, ok := lookupEnv("ANALYZERS"); ok {
		analyzers, err := parseAnalyzers(v)
		if err != nil {
			return core.NewFrameworkError("distributorcfg.LoadFromEnv", "config", err)
		}
		c.Analyzers = analyzers
		c.debugf("analyzers", "ANALYZERS")
	}

	if v, ok := lookupEnv("ANALYZER_TIMEOUT_MS"); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			c.AnalyzerTimeout = time.Duration(ms) * time.Millisecond
			c.debugf("analyzer_timeout", "ANALYZER_TIMEOUT_MS")
		}
	}

	if v, ok := lookupEnv("DEFAULT_WEIGHTS"); ok {
		weights, err := parseWeights(v)
		if err != nil {
			return core.NewFrameworkError("distributorcfg.LoadFromEnv", "config", err)
		}
		c.DefaultWeights = weights
		c.debugf("default_weights", "DEFAULT_WEIGHTS")
	}

	if v, ok := lookupEnv("WEIGHT_POLL_SECS"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			c.WeightPollInterval = time.Duration(secs) * time.Second
			c.debugf("weight_poll_interval", "WEIGHT_POLL_SECS")
		}
	}

	if v, ok := lookupEnv("CB_FAILURE_THRESHOLD"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.CBFailureThreshold = n
			c.debugf("cb_failure_threshold", "CB_FAILURE_THRESHOLD")
		}
	}

	if v, ok := lookupEnv("CB_RECOVERY_TIMEOUT_SEC"); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			c.CBRecoveryTimeout = time.Duration(secs * float64(time.Second))
			c.debugf("cb_recovery_timeout", "CB_RECOVERY_TIMEOUT_SEC")
		}
	}

	if v, ok := lookupEnv("CB_HALF_OPEN_SUCC_THRESHOLD"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.CBHalfOpenSuccessThreshold = n
			c.debugf("cb_half_open_success_threshold", "CB_HALF_OPEN_SUCC_THRESHOLD")
		}
	}

	if v, ok := lookupEnv("LOGDIST_REDIS_URL", "REDIS_URL"); ok {
		c.RedisURL = v
		c.debugf("redis_url", "LOGDIST_REDIS_URL|REDIS_URL")
	}

	if v, ok := lookupEnv("CONFIG_STORE_NAMESPACE"); ok {
		c.ConfigStoreNS = v
		c.debugf("config_store_namespace", "CONFIG_STORE_NAMESPACE")
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

// Validate enforces the startup invariants: non-empty analyzer set and
// strictly positive breaker tuning. A failure here is fatal and should
// abort process startup with a non-zero exit.
func (c *Config) Validate() error {
	if len(c.Analyzers) == 0 {
		return core.NewFrameworkError("distributorcfg.Validate", "config", fmt.Errorf("%w: set ANALYZERS", core.ErrNoAnalyzers))
	}
	if c.CBFailureThreshold <= 0 || c.CBRecoveryTimeout <= 0 || c.CBHalfOpenSuccessThreshold <= 0 {
		return core.NewFrameworkError("distributorcfg.Validate", "config", fmt.Errorf("%w: circuit breaker thresholds must be positive", core.ErrInvalidConfiguration))
	}
	if c.AnalyzerTimeout <= 0 {
		return core.NewFrameworkError("distributorcfg.Validate", "config", fmt.Errorf("%w: analyzer timeout must be positive", core.ErrInvalidConfiguration))
	}
	return nil
}

// Load builds a Config the way cmd/distributor does: defaults, an
// optional static file (if LOGDIST_CONFIG_FILE is set), then environment
// variables, then validation.
func Load(logger core.Logger) (*Config, error) {
	c := Default().WithLogger(logger)

	if path, ok := lookupEnv("LOGDIST_CONFIG_FILE"); ok {
		if err := c.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := c.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}
