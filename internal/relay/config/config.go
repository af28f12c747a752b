// Package config handles configuration for the relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mirokugang/mukon/internal/flagx"
)

// Config holds runtime settings for a relay instance.
//
// An empty LedgerAddr makes the relay authorize joins by handle derivation
// only. An empty RedisAddr runs a single instance without fan-out.
type Config struct {
	EndpointAddr    string        `yaml:"endpoint_addr" json:"endpoint_addr" env:"RELAY_ADDR" env-default:":8080"`
	Secret          string        `yaml:"secret" json:"secret" env:"RELAY_SECRET"`
	AuthTimeout     time.Duration `yaml:"auth_timeout" json:"auth_timeout" env:"RELAY_AUTH_TIMEOUT" env-default:"10s"`
	MaxAuthFailures int           `yaml:"max_auth_failures" json:"max_auth_failures" env:"RELAY_MAX_AUTH_FAILURES" env-default:"3"`
	SendQueue       int           `yaml:"send_queue" json:"send_queue" env:"RELAY_SEND_QUEUE" env-default:"256"`
	MaxMessageSize  int64         `yaml:"max_message_size" json:"max_message_size" env:"RELAY_MAX_MESSAGE_SIZE" env-default:"65536"`
	LedgerAddr      string        `yaml:"ledger_addr" json:"ledger_addr" env:"RELAY_LEDGER_ADDR"`
	SchemaVersion   uint8         `yaml:"schema_version" json:"schema_version" env:"RELAY_SCHEMA_VERSION" env-default:"1"`
	RedisAddr       string        `yaml:"redis_addr" json:"redis_addr" env:"RELAY_REDIS_ADDR"`
	LogFormat       string        `yaml:"log_format" json:"log_format" env:"RELAY_LOG_FORMAT" env-default:"json"`
	LogLevel        string        `yaml:"log_level" json:"log_level" env:"RELAY_LOG_LEVEL" env-default:"info"`
}

func (c *Config) LoadDefaults() error {
	return cleanenv.ReadEnv(c)
}

func (c *Config) Validate() error {
	switch {
	case c.EndpointAddr == "":
		return errors.New("empty relay address")
	case c.AuthTimeout <= 0:
		return errors.New("auth timeout must be positive")
	case c.MaxAuthFailures <= 0:
		return errors.New("max auth failures must be positive")
	case c.SendQueue <= 0:
		return errors.New("send queue must be positive")
	case c.MaxMessageSize <= 0:
		return errors.New("max message size must be positive")
	case c.SchemaVersion == 0:
		return errors.New("schema version must be positive")
	}
	return nil
}

// LoadConfig applies defaults and environment, then an optional config file
// and finally command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.LoadDefaults(); err != nil {
		return nil, err
	}
	if path := flagx.ConfigPath(os.Args[1:]); path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
