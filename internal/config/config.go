package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lazypower/calibrator/internal/calibration"
)

// EnvFile is the dotenv file Load reads when it exists.
var EnvFile = ".env"

// Config holds all calibrator configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Fixtures string         `yaml:"fixtures" env:"CALIBRATOR_FIXTURES"` // collaborator fixtures YAML
}

type ServerConfig struct {
	Bind string `yaml:"bind" env:"CALIBRATOR_BIND"`
	Port int    `yaml:"port" env:"CALIBRATOR_PORT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"CALIBRATOR_DB"`
}

type EngineConfig struct {
	NodeID int64 `yaml:"node_id" env:"CALIBRATOR_NODE_ID"` // snowflake node for event ids

	// Settings are seeded as the global default when the store has none.
	Settings calibration.Settings `yaml:"settings"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Engine: EngineConfig{
			Settings: calibration.DefaultSettings(),
		},
	}
}

// Load builds a Config from defaults, then the optional YAML file at path,
// then the environment. A dotenv file feeds the environment without
// overriding variables that are already set.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := loadEnvFile(EnvFile); err != nil {
		return cfg, err
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadEnvFile(name string) error {
	if name == "" {
		return nil
	}
	if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Engine.NodeID < 0 || c.Engine.NodeID > 1023 {
		return fmt.Errorf("engine node id %d out of range 0-1023", c.Engine.NodeID)
	}
	if err := c.Engine.Settings.Validate(); err != nil {
		return fmt.Errorf("engine settings: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
