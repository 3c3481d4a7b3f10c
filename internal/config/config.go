// Package config loads service configuration from the environment, optionally
// layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration of every service. Each process reads only
// the fields it needs.
type Config struct {
	// DevMode swaps DynamoDB, KMS and SSM for in-process stand-ins.
	DevMode  bool   `yaml:"dev_mode"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Service selects which service cmd/api serves.
	Service string `yaml:"service" validate:"omitempty,oneof=data auth user push"`

	DataAddr string `yaml:"data_addr" validate:"required"`
	AuthAddr string `yaml:"auth_addr" validate:"required"`
	UserAddr string `yaml:"user_addr" validate:"required"`
	PushAddr string `yaml:"push_addr" validate:"required"`

	DataServerURL string `yaml:"data_server_url" validate:"required,url"`
	AuthServerURL string `yaml:"auth_server_url" validate:"required,url"`
	PushServerURL string `yaml:"push_server_url" validate:"required,url"`

	DynamoDBEndpoint string `yaml:"dynamodb_endpoint" validate:"omitempty,url"`
	TablePrefix      string `yaml:"table_prefix"`

	// TokenSigner is "kms" for KMS HMAC keys or "hmac" for a local key read
	// from TokenKeyParam. DevMode always signs locally.
	TokenSigner   string `yaml:"token_signer" validate:"oneof=kms hmac"`
	KMSKeyID      string `yaml:"kms_key_id" validate:"required_if=TokenSigner kms"`
	TokenKeyParam string `yaml:"token_key_param" validate:"required"`

	TokenTTL             time.Duration `yaml:"token_ttl" validate:"gt=0"`
	UpstreamTimeout      time.Duration `yaml:"upstream_timeout" validate:"gt=0"`
	SessionSweepInterval time.Duration `yaml:"session_sweep_interval" validate:"gt=0"`

	MetricsEnabled     bool     `yaml:"metrics_enabled"`
	OTLPEndpoint       string   `yaml:"otlp_endpoint"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" validate:"min=1"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:             "info",
		DataAddr:             ":34568",
		AuthAddr:             ":34570",
		UserAddr:             ":34572",
		PushAddr:             ":34574",
		DataServerURL:        "http://localhost:34568",
		AuthServerURL:        "http://localhost:34570",
		PushServerURL:        "http://localhost:34574",
		TokenSigner:          "kms",
		KMSKeyID:             "alias/socialnet-token-key",
		TokenKeyParam:        "/socialnet/token-key",
		TokenTTL:             24 * time.Hour,
		UpstreamTimeout:      10 * time.Second,
		SessionSweepInterval: 5 * time.Minute,
		MetricsEnabled:       true,
		CORSAllowedOrigins:   []string{"*"},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE, then environment variables, and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	var errs []error
	cfg.DevMode = getEnvBool("DEV_MODE", cfg.DevMode)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.Service = getEnv("SERVICE_NAME", cfg.Service)

	cfg.DataAddr = getEnv("DATA_ADDR", cfg.DataAddr)
	cfg.AuthAddr = getEnv("AUTH_ADDR", cfg.AuthAddr)
	cfg.UserAddr = getEnv("USER_ADDR", cfg.UserAddr)
	cfg.PushAddr = getEnv("PUSH_ADDR", cfg.PushAddr)

	cfg.DataServerURL = getEnv("DATA_SERVER_URL", cfg.DataServerURL)
	cfg.AuthServerURL = getEnv("AUTH_SERVER_URL", cfg.AuthServerURL)
	cfg.PushServerURL = getEnv("PUSH_SERVER_URL", cfg.PushServerURL)

	cfg.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", cfg.DynamoDBEndpoint)
	cfg.TablePrefix = getEnv("TABLE_PREFIX", cfg.TablePrefix)
	cfg.TokenSigner = strings.ToLower(getEnv("TOKEN_SIGNER", cfg.TokenSigner))
	cfg.KMSKeyID = getEnv("KMS_KEY_ID", cfg.KMSKeyID)
	cfg.TokenKeyParam = getEnv("TOKEN_KEY_PARAM", cfg.TokenKeyParam)

	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", cfg.TokenTTL, &errs)
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout, &errs)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval, &errs)

	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
