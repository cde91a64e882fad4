package logentries

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"logentries-sink/pkg/log"
)

// Defaults applied by DefaultConfig and to zero-valued fields.
const (
	DefaultRegion            = RegionEU
	DefaultBatchPostingLimit = 50
	DefaultPeriod            = 2 * time.Second
	DefaultHandshakeTimeout  = 6 * time.Second
	DefaultConnectTimeout    = 5 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultKeepAliveIdle     = 10 * time.Second
	DefaultKeepAliveInterval = time.Second
)

// Config holds the sink settings.
type Config struct {
	// Token is prepended to every line sent to the collector.
	Token string `yaml:"token"`
	// Region selects the regional collector, "eu" or "us".
	Region string `yaml:"region"`
	// URL overrides the regional collector host, optionally with a port.
	URL string `yaml:"url"`
	// UseTLS wraps the connection in TLS. A zero Config has it off, so
	// start from DefaultConfig.
	UseTLS bool `yaml:"use_tls"`

	BatchPostingLimit int           `yaml:"batch_posting_limit"`
	Period            time.Duration `yaml:"period"`
	MinimumLevel      log.Level     `yaml:"minimum_level"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	// ConnectionResetInterval replaces connections older than this on the
	// next batch. Zero keeps a healthy connection forever.
	ConnectionResetInterval time.Duration `yaml:"connection_reset_interval"`
}

// DefaultConfig returns a TLS configuration for the EU collector with the
// default batching and timeouts. Only the token is left to set.
func DefaultConfig() Config {
	return Config{
		Region:            DefaultRegion,
		UseTLS:            true,
		BatchPostingLimit: DefaultBatchPostingLimit,
		Period:            DefaultPeriod,
		MinimumLevel:      log.Trace,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		ConnectTimeout:    DefaultConnectTimeout,
		WriteTimeout:      DefaultWriteTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.BatchPostingLimit == 0 {
		c.BatchPostingLimit = DefaultBatchPostingLimit
	}
	if c.Period == 0 {
		c.Period = DefaultPeriod
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Validate reports the first invalid setting as an ErrConfiguration error.
// Zero-valued optional fields are accepted and take their defaults.
func (c Config) Validate() error {
	c = c.withDefaults()

	if strings.TrimSpace(c.Token) == "" {
		return configError("token is required")
	}
	if _, err := c.Endpoint(); err != nil {
		return err
	}
	if c.BatchPostingLimit < 0 {
		return configError("batch posting limit must be positive, got %d", c.BatchPostingLimit)
	}
	for name, d := range map[string]time.Duration{
		"period":                    c.Period,
		"handshake timeout":         c.HandshakeTimeout,
		"connect timeout":           c.ConnectTimeout,
		"write timeout":             c.WriteTimeout,
		"connection reset interval": c.ConnectionResetInterval,
	} {
		if d < 0 {
			return configError("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

// Endpoint resolves the collector address from Region, URL and UseTLS.
func (c Config) Endpoint() (Endpoint, error) {
	region := c.Region
	if region == "" {
		region = DefaultRegion
	}
	return NewEndpoint(region, c.URL, c.UseTLS)
}

// LoadConfig reads a YAML file over DefaultConfig. Durations use Go syntax
// ("2s", "500ms") and minimum_level takes a level name.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, configError("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, configError("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Environment variables read by ConfigFromEnv.
const (
	EnvToken             = "LOGENTRIES_TOKEN"
	EnvRegion            = "LOGENTRIES_REGION"
	EnvURL               = "LOGENTRIES_URL"
	EnvUseTLS            = "LOGENTRIES_USE_TLS"
	EnvBatchPostingLimit = "LOGENTRIES_BATCH_POSTING_LIMIT"
	EnvPeriod            = "LOGENTRIES_PERIOD"
	EnvMinimumLevel      = "LOGENTRIES_MINIMUM_LEVEL"
	EnvHandshakeTimeout  = "LOGENTRIES_HANDSHAKE_TIMEOUT"
	EnvConnectTimeout    = "LOGENTRIES_CONNECT_TIMEOUT"
)

// ConfigFromEnv builds a Config from LOGENTRIES_* variables over
// DefaultConfig. Any files given are loaded first as .env files; variables
// already set in the environment win.
func ConfigFromEnv(files ...string) (Config, error) {
	cfg := DefaultConfig()

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return cfg, configError("load env files: %w", err)
		}
	}

	var errs *multierror.Error
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	parse := func(name string, fn func(string) error) {
		v, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := fn(strings.TrimSpace(v)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s=%q: %w", name, v, err))
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(s string) (err error) {
			*dst, err = time.ParseDuration(s)
			return err
		}
	}

	str(EnvToken, &cfg.Token)
	str(EnvRegion, &cfg.Region)
	str(EnvURL, &cfg.URL)
	parse(EnvUseTLS, func(s string) (err error) {
		cfg.UseTLS, err = strconv.ParseBool(s)
		return err
	})
	parse(EnvBatchPostingLimit, func(s string) (err error) {
		cfg.BatchPostingLimit, err = strconv.Atoi(s)
		return err
	})
	parse(EnvPeriod, duration(&cfg.Period))
	parse(EnvMinimumLevel, func(s string) error {
		return cfg.MinimumLevel.UnmarshalText([]byte(s))
	})
	parse(EnvHandshakeTimeout, duration(&cfg.HandshakeTimeout))
	parse(EnvConnectTimeout, duration(&cfg.ConnectTimeout))

	if err := errs.ErrorOrNil(); err != nil {
		return cfg, configError("%w", err)
	}
	return cfg, cfg.Validate()
}
