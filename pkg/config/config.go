package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn" envconfig:"WEBAUTHN"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	JWT       JWTConfig       `yaml:"jwt" envconfig:"JWT"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// WebAuthnConfig contains relying-party configuration
type WebAuthnConfig struct {
	RPID     string `yaml:"rp_id" envconfig:"RP_ID"`
	RPOrigin string `yaml:"rp_origin" envconfig:"RP_ORIGIN"`
	RPName   string `yaml:"rp_name" envconfig:"RP_NAME"`
	// ChallengeTTLSeconds bounds how long a pending ceremony stays valid.
	ChallengeTTLSeconds int `yaml:"challenge_ttl_seconds" envconfig:"CHALLENGE_TTL_SECONDS"`
	// UserVerification is the requirement sent to clients and enforced at
	// verification: "required", "preferred", or "discouraged".
	UserVerification string `yaml:"user_verification" envconfig:"USER_VERIFICATION"`
	// Attestation is the conveyance preference: "none", "indirect", or "direct".
	Attestation string `yaml:"attestation" envconfig:"ATTESTATION"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// CacheConfig contains challenge cache configuration
type CacheConfig struct {
	Type  string      `yaml:"type" envconfig:"TYPE"` // memory, redis
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// RateLimitConfig throttles ceremony endpoints per client IP.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// JWTConfig contains session token configuration
type JWTConfig struct {
	Secret        string `yaml:"secret" envconfig:"SECRET"`
	ExpiryMinutes int    `yaml:"expiry_minutes" envconfig:"EXPIRY_MINUTES"`
	Issuer        string `yaml:"issuer" envconfig:"ISSUER"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("PASSKEY", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		WebAuthn: WebAuthnConfig{
			RPID:                "localhost",
			RPOrigin:            "http://localhost:3000",
			RPName:              "Passkey Backend",
			ChallengeTTLSeconds: 300,
			UserVerification:    "preferred",
			Attestation:         "none",
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "passkey",
				Timeout:  10,
			},
		},
		Cache: CacheConfig{
			Type: "memory",
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "webauthn:challenge:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			ExpiryMinutes: 30,
			Issuer:        "passkey-backend",
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			MaxAttempts:    10,
			WindowSeconds:  60,
			LockoutSeconds: 300,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("rp_id is required")
	}

	if c.WebAuthn.RPOrigin == "" {
		return fmt.Errorf("rp_origin is required")
	}

	if c.WebAuthn.ChallengeTTLSeconds <= 0 {
		return fmt.Errorf("challenge_ttl_seconds must be positive")
	}

	switch c.WebAuthn.UserVerification {
	case "required", "preferred", "discouraged":
	default:
		return fmt.Errorf("invalid user_verification: %s", c.WebAuthn.UserVerification)
	}

	switch c.WebAuthn.Attestation {
	case "none", "indirect", "direct":
	default:
		return fmt.Errorf("invalid attestation: %s", c.WebAuthn.Attestation)
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return fmt.Errorf("invalid cache type: %s (must be memory or redis)", c.Cache.Type)
	}

	if c.Cache.Type == "redis" && c.Cache.Redis.Address == "" {
		return fmt.Errorf("redis address is required when using redis cache")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	if c.JWT.ExpiryMinutes <= 0 {
		return fmt.Errorf("jwt expiry_minutes must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxAttempts <= 0 {
			return fmt.Errorf("rate_limit max_attempts must be positive")
		}
		if c.RateLimit.WindowSeconds <= 0 {
			return fmt.Errorf("rate_limit window_seconds must be positive")
		}
		if c.RateLimit.LockoutSeconds <= 0 {
			return fmt.Errorf("rate_limit lockout_seconds must be positive")
		}
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
