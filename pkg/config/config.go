package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ridha-boughediri/mys3/pkg/notify"
)

// EnvPrefix marks environment overrides. A double underscore separates
// sections: MYS3_SERVER__HTTP_PORT sets server.http_port.
const EnvPrefix = "MYS3_"

// Config holds the configuration for one mys3 instance.
type Config struct {
	Server  ServerConfig  `koanf:"server" yaml:"server"`
	Storage StorageConfig `koanf:"storage" yaml:"storage"`
	Redis   RedisConfig   `koanf:"redis" yaml:"redis"`
	Notify  NotifyConfig  `koanf:"notify" yaml:"notify"`
	Ingest  IngestConfig  `koanf:"ingest" yaml:"ingest"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
}

type ServerConfig struct {
	HTTPPort        int           `koanf:"http_port" yaml:"http_port" validate:"min=1,max=65535"`
	TCPPort         int           `koanf:"tcp_port" yaml:"tcp_port" validate:"min=1,max=65535"`
	UDPPort         int           `koanf:"udp_port" yaml:"udp_port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`
}

type StorageConfig struct {
	Path   string `koanf:"path" yaml:"path" validate:"required"`
	Region string `koanf:"region" yaml:"region" validate:"required"`
}

type RedisConfig struct {
	Enabled        bool   `koanf:"enabled" yaml:"enabled"`
	Address        string `koanf:"address" yaml:"address" validate:"required_if=Enabled true"`
	Password       string `koanf:"password" yaml:"password"`
	DB             int    `koanf:"db" yaml:"db" validate:"min=0"`
	EventsChannel  string `koanf:"events_channel" yaml:"events_channel" validate:"required_if=Enabled true"`
	ControlKey     string `koanf:"control_key" yaml:"control_key" validate:"required_if=Enabled true"`
	ControlChannel string `koanf:"control_channel" yaml:"control_channel" validate:"required_if=Enabled true"`
}

type NotifyConfig struct {
	// Targets are the notifiers used until a control manifest replaces them.
	Targets []notify.Target `koanf:"targets" yaml:"targets" validate:"dive"`
}

type IngestConfig struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	TCP        bool   `koanf:"tcp" yaml:"tcp"`
	UDP        bool   `koanf:"udp" yaml:"udp"`
	BufferSize uint64 `koanf:"buffer_size" yaml:"buffer_size" validate:"min=2"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns a configuration that runs locally without Redis.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			TCPPort:         8081,
			UDPPort:         8082,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path:   "./data/buckets",
			Region: "us-east-1",
		},
		Redis: RedisConfig{
			Address:        "localhost:6379",
			EventsChannel:  "mys3:events",
			ControlKey:     "mys3:control",
			ControlChannel: "mys3:control:updates",
		},
		Ingest: IngestConfig{
			TCP:        true,
			UDP:        true,
			BufferSize: 65536,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the optional YAML file at path, a .env file in the
// working directory, and MYS3_ environment variables, in rising priority.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the ingest buffer size.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if size := c.Ingest.BufferSize; size&(size-1) != 0 {
		return fmt.Errorf("config validation failed: ingest.buffer_size %d is not a power of 2", size)
	}
	return nil
}

// envTransform maps MYS3_REDIS__EVENTS_CHANNEL to redis.events_channel.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
