package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mirokugang/mukon/internal/client/avatar"
	"github.com/mirokugang/mukon/internal/client/client"
)

type Config struct {
	HomeDir       string `yaml:"home_dir" json:"home_dir" env:"MUKON_HOME"`
	LedgerAddr    string `yaml:"ledger_addr" json:"ledger_addr" env:"MUKON_LEDGER_ADDR" env-default:"127.0.0.1:50051"`
	RelayURL      string `yaml:"relay_url" json:"relay_url" env:"MUKON_RELAY_URL" env-default:"ws://127.0.0.1:8080/ws"`
	SchemaVersion uint8  `yaml:"schema_version" json:"schema_version" env:"MUKON_SCHEMA_VERSION" env-default:"1"`

	MaxRetries      uint64        `yaml:"max_retries" json:"max_retries" env:"MUKON_MAX_RETRIES" env-default:"5"`
	RetryInterval   time.Duration `yaml:"retry_interval" json:"retry_interval" env:"MUKON_RETRY_INTERVAL" env-default:"200ms"`
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff" json:"max_retry_backoff" env:"MUKON_MAX_RETRY_BACKOFF" env-default:"5s"`
	CallTimeout     time.Duration `yaml:"call_timeout" json:"call_timeout" env:"MUKON_CALL_TIMEOUT" env-default:"10s"`

	S3Region    string `yaml:"s3_region" json:"s3_region" env:"MUKON_S3_REGION" env-default:"us-east-1"`
	S3AccessKey string `yaml:"s3_access_key" json:"s3_access_key" env:"MUKON_S3_ACCESS_KEY"`
	S3SecretKey string `yaml:"s3_secret_key" json:"s3_secret_key" env:"MUKON_S3_SECRET_KEY"`
	S3Endpoint  string `yaml:"s3_endpoint" json:"s3_endpoint" env:"MUKON_S3_ENDPOINT"`
	S3Bucket    string `yaml:"s3_bucket" json:"s3_bucket" env:"MUKON_S3_BUCKET" env-default:"mukon"`
	LogFormat   string `yaml:"log_format" json:"log_format" env:"MUKON_LOG_FORMAT" env-default:"text"`
	LogLevel    string `yaml:"log_level" json:"log_level" env:"MUKON_LOG_LEVEL" env-default:"warn"`
}

// LoadDefaults applies tag defaults and the environment, and resolves an
// unset HomeDir to ~/.mukon.
func (c *Config) LoadDefaults() error {
	if err := cleanenv.ReadEnv(c); err != nil {
		return err
	}
	if c.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("home dir: %w", err)
		}
		c.HomeDir = filepath.Join(home, ".mukon")
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.HomeDir == "":
		return errors.New("empty home directory")
	case c.LedgerAddr == "":
		return errors.New("empty ledger address")
	case c.SchemaVersion == 0:
		return errors.New("schema version must be positive")
	}
	return nil
}

func (c *Config) KeystorePath() string { return filepath.Join(c.HomeDir, "key.json") }
func (c *Config) DatabasePath() string { return filepath.Join(c.HomeDir, "contacts.db") }
func (c *Config) StatePath() string    { return filepath.Join(c.HomeDir, "state.db") }

func (c *Config) Retry() client.RetryPolicy {
	return client.RetryPolicy{
		MaxRetries:      c.MaxRetries,
		InitialInterval: c.RetryInterval,
		MaxInterval:     c.MaxRetryBackoff,
		CallTimeout:     c.CallTimeout,
	}
}

func (c *Config) Avatar() avatar.Config {
	return avatar.Config{
		Region:       c.S3Region,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		BaseEndpoint: c.S3Endpoint,
		Bucket:       c.S3Bucket,
	}
}

// LoadConfig builds a Config from defaults, environment and, when path is
// not empty, a config file.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if err := cfg.LoadDefaults(); err != nil {
		return nil, err
	}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	return cfg, nil
}
