// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/stwalsh4118/airwave/internal/faults"
)

const (
	defaultServerPort                = 8080
	defaultServerHost                = "0.0.0.0"
	defaultReadTimeout               = 30 * time.Second
	defaultWriteTimeout              = time.Duration(0) // audio responses stay open for the length of a track
	defaultStaticDir                 = "./static"
	defaultDatabasePath              = "./data/airwave.db"
	defaultDatabaseConnectionTimeout = 5 * time.Second
	defaultDatabaseEnableWAL         = true
	defaultLogLevel                  = "info"
	defaultLogPretty                 = false

	defaultProviderClientName     = "airwave"
	defaultProviderAPIVersion     = "1.16.1"
	defaultProviderPageSize       = 500
	defaultProviderResolveRetries = 10
	defaultProviderRequestTimeout = 15 * time.Second
	defaultProviderBreakerFails   = 5
	defaultProviderBreakerReset   = 60 * time.Second

	defaultRadioMaxQueue        = 5
	defaultRadioMaxPrefetch     = 10
	defaultRadioDefaultRank     = 256
	defaultRadioFrameSize       = 65536
	defaultRadioWaitDelay       = 50 * time.Millisecond
	defaultRadioTickInterval    = 150 * time.Millisecond
	defaultRadioFlushInterval   = 50 * time.Millisecond
	defaultRadioPersistInterval = 60 * time.Second
	defaultRadioRefreshInterval = 5 * time.Minute

	envPrefix = "AIRWAVE"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Provider ProviderConfig
	Radio    RadioConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StaticDir    string
	CertFile     string
	KeyFile      string
}

// TLSEnabled reports whether both halves of a key pair are configured
func (s ServerConfig) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path              string
	ConnectionTimeout time.Duration
	EnableWAL         bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// ProviderConfig holds the remote catalog connection settings
type ProviderConfig struct {
	BaseURL        string
	Username       string
	Password       string
	ClientName     string
	APIVersion     string
	PageSize       int
	ResolveRetries int
	RequestTimeout time.Duration
	BreakerFails   int
	BreakerReset   time.Duration
}

// RadioConfig holds the scheduling and buffering knobs
type RadioConfig struct {
	MaxQueue        int
	MaxPrefetch     int
	DefaultRank     int
	FrameSize       int
	WaitDelay       time.Duration
	TickInterval    time.Duration
	FlushInterval   time.Duration
	PersistInterval time.Duration
	RefreshInterval time.Duration
}

// Load reads configuration from .env file, config files, environment variables, and defaults.
// Every failure is a fatal config fault.
func Load() (*Config, error) {
	// .env files are optional in production where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/airwave")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, faults.New(faults.KindConfig, "error reading config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, faults.New(faults.KindConfig, "error unmarshaling config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, faults.New(faults.KindConfig, "invalid configuration", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key must have a default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)
	v.SetDefault("server.staticdir", defaultStaticDir)
	v.SetDefault("server.certfile", "")
	v.SetDefault("server.keyfile", "")

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.connectiontimeout", defaultDatabaseConnectionTimeout)
	v.SetDefault("database.enablewal", defaultDatabaseEnableWAL)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	v.SetDefault("provider.baseurl", "")
	v.SetDefault("provider.username", "")
	v.SetDefault("provider.password", "")
	v.SetDefault("provider.clientname", defaultProviderClientName)
	v.SetDefault("provider.apiversion", defaultProviderAPIVersion)
	v.SetDefault("provider.pagesize", defaultProviderPageSize)
	v.SetDefault("provider.resolveretries", defaultProviderResolveRetries)
	v.SetDefault("provider.requesttimeout", defaultProviderRequestTimeout)
	v.SetDefault("provider.breakerfails", defaultProviderBreakerFails)
	v.SetDefault("provider.breakerreset", defaultProviderBreakerReset)

	v.SetDefault("radio.maxqueue", defaultRadioMaxQueue)
	v.SetDefault("radio.maxprefetch", defaultRadioMaxPrefetch)
	v.SetDefault("radio.defaultrank", defaultRadioDefaultRank)
	v.SetDefault("radio.framesize", defaultRadioFrameSize)
	v.SetDefault("radio.waitdelay", defaultRadioWaitDelay)
	v.SetDefault("radio.tickinterval", defaultRadioTickInterval)
	v.SetDefault("radio.flushinterval", defaultRadioFlushInterval)
	v.SetDefault("radio.persistinterval", defaultRadioPersistInterval)
	v.SetDefault("radio.refreshinterval", defaultRadioRefreshInterval)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("invalid write timeout: %v (must be >= 0)", c.Server.WriteTimeout)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("server cert file and key file must be set together")
	}
	if c.Database.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid database connection timeout: %v (must be > 0)", c.Database.ConnectionTimeout)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base url is required")
	}
	if c.Provider.Username == "" {
		return fmt.Errorf("provider username is required")
	}
	if c.Provider.PageSize < 1 {
		return fmt.Errorf("invalid provider page size: %d (must be >= 1)", c.Provider.PageSize)
	}
	if c.Provider.ResolveRetries < 0 {
		return fmt.Errorf("invalid provider resolve retries: %d (must be >= 0)", c.Provider.ResolveRetries)
	}
	if c.Provider.RequestTimeout <= 0 {
		return fmt.Errorf("invalid provider request timeout: %v (must be > 0)", c.Provider.RequestTimeout)
	}
	if c.Provider.BreakerFails < 1 {
		return fmt.Errorf("invalid provider breaker threshold: %d (must be >= 1)", c.Provider.BreakerFails)
	}

	// advancing pops the head, so the queue needs a successor
	if c.Radio.MaxQueue < 2 {
		return fmt.Errorf("invalid radio max queue: %d (must be >= 2)", c.Radio.MaxQueue)
	}
	if c.Radio.MaxPrefetch < c.Radio.MaxQueue {
		return fmt.Errorf("invalid radio max prefetch: %d (must be >= max queue %d)", c.Radio.MaxPrefetch, c.Radio.MaxQueue)
	}
	if c.Radio.FrameSize < 1 {
		return fmt.Errorf("invalid radio frame size: %d (must be >= 1)", c.Radio.FrameSize)
	}

	intervals := map[string]time.Duration{
		"wait delay":       c.Radio.WaitDelay,
		"tick interval":    c.Radio.TickInterval,
		"flush interval":   c.Radio.FlushInterval,
		"persist interval": c.Radio.PersistInterval,
		"refresh interval": c.Radio.RefreshInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("invalid radio %s: %v (must be > 0)", name, d)
		}
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
