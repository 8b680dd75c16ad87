// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Actions  ActionsConfig  `yaml:"actions"`
	Engine   EngineConfig   `yaml:"engine"`
	SES      SESConfig      `yaml:"ses"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port        int           `yaml:"port"`
	CORSOrigin  string        `yaml:"cors_origin"`
	ShutdownTTL time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig enables the per-campaign lease when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AMQPConfig enables broker publishing of campaign events when URL is set.
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type ActionsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type EngineConfig struct {
	DailyCap  int           `yaml:"daily_cap"`
	BatchSize int           `yaml:"batch_size"`
	Window    time.Duration `yaml:"window"`
	MaxJitter time.Duration `yaml:"max_jitter"`
	LeaseTTL  time.Duration `yaml:"lease_ttl"`
}

type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	From      string `yaml:"from"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads an optional YAML file, then applies environment overrides and
// defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.Name)
	str("DB_SSLMODE", &c.Database.SSLMode)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("AMQP_URL", &c.AMQP.URL)
	str("AMQP_QUEUE", &c.AMQP.Queue)
	str("API_BASE_URI", &c.Actions.BaseURL)
	str("CORS_ORIGIN", &c.Server.CORSOrigin)
	str("SES_REGION", &c.SES.Region)
	str("SES_ACCESS_KEY", &c.SES.AccessKey)
	str("SES_SECRET_KEY", &c.SES.SecretKey)
	str("EMAIL", &c.SES.From)
	str("LOG_LEVEL", &c.Log.Level)

	ints := map[string]*int{
		"PORT":              &c.Server.Port,
		"REDIS_DB":          &c.Redis.DB,
		"ENGINE_DAILY_CAP":  &c.Engine.DailyCap,
		"ENGINE_BATCH_SIZE": &c.Engine.BatchSize,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"ENGINE_WINDOW":     &c.Engine.Window,
		"ENGINE_MAX_JITTER": &c.Engine.MaxJitter,
		"ENGINE_LEASE_TTL":  &c.Engine.LeaseTTL,
		"ACTIONS_TIMEOUT":   &c.Actions.Timeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ShutdownTTL == 0 {
		c.Server.ShutdownTTL = 15 * time.Second
	}
	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "campaign_events"
	}
	if c.Actions.Timeout == 0 {
		c.Actions.Timeout = 30 * time.Second
	}
	if c.Engine.DailyCap == 0 {
		c.Engine.DailyCap = 25
	}
	if c.Engine.BatchSize == 0 {
		c.Engine.BatchSize = 25
	}
	if c.Engine.Window == 0 {
		c.Engine.Window = 5 * time.Minute
	}
	if c.Engine.MaxJitter == 0 {
		c.Engine.MaxJitter = 3 * time.Minute
	}
	if c.Engine.LeaseTTL == 0 {
		c.Engine.LeaseTTL = time.Minute
	}
	if c.SES.Region == "" {
		c.SES.Region = "us-east-1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
