package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. QUIZ_API_TOKEN.
const EnvPrefix = "QUIZ"

type Config struct {
	API struct {
		BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
		Token   string `yaml:"token" envconfig:"TOKEN"`
		Timeout string `yaml:"timeout" envconfig:"TIMEOUT"`
		// Retries is how often failed reads are retried. Zero keeps transport failures surfaced as-is.
		Retries int `yaml:"retries" envconfig:"RETRIES"`
	} `yaml:"api" envconfig:"API"`
	Transport struct {
		Kind    string `yaml:"kind" envconfig:"KIND"`
		WSURL   string `yaml:"ws_url" envconfig:"WS_URL"`
		NATSURL string `yaml:"nats_url" envconfig:"NATS_URL"`
	} `yaml:"transport" envconfig:"TRANSPORT"`
	Session struct {
		SettleDelay            string `yaml:"settle_delay" envconfig:"SETTLE_DELAY"`
		ParticipantPoll        string `yaml:"participant_poll" envconfig:"PARTICIPANT_POLL"`
		DefaultTimePerQuestion int    `yaml:"default_time_per_question" envconfig:"DEFAULT_TIME_PER_QUESTION"`
	} `yaml:"session" envconfig:"SESSION"`
	Store struct {
		Backend  string `yaml:"backend" envconfig:"BACKEND"`
		BoltPath string `yaml:"bolt_path" envconfig:"BOLT_PATH"`
		Redis    struct {
			Addr     string `yaml:"addr" envconfig:"ADDR"`
			Password string `yaml:"password" envconfig:"PASSWORD"`
			DB       int    `yaml:"db" envconfig:"DB"`
			TTL      string `yaml:"ttl" envconfig:"TTL"`
		} `yaml:"redis" envconfig:"REDIS"`
		Postgres struct {
			URL string `yaml:"url" envconfig:"URL"`
		} `yaml:"postgres" envconfig:"POSTGRES"`
	} `yaml:"store" envconfig:"STORE"`
	Cache struct {
		QuestionTTL string `yaml:"question_ttl" envconfig:"QUESTION_TTL"`
		Size        int    `yaml:"size" envconfig:"SIZE"`
	} `yaml:"cache" envconfig:"CACHE"`
	Log struct {
		Debug bool `yaml:"debug" envconfig:"DEBUG"`
	} `yaml:"log" envconfig:"LOG"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	cfg := Config{}
	cfg.API.BaseURL = "http://localhost:5000"
	cfg.API.Timeout = "10s"
	cfg.Transport.Kind = "ws"
	cfg.Transport.WSURL = "ws://localhost:5000/ws"
	cfg.Session.SettleDelay = "800ms"
	cfg.Session.ParticipantPoll = "5s"
	cfg.Session.DefaultTimePerQuestion = 30
	cfg.Store.Backend = "memory"
	cfg.Store.BoltPath = "quiz-progress.db"
	cfg.Store.Redis.TTL = "24h"
	cfg.Cache.QuestionTTL = "10m"
	cfg.Cache.Size = 128
	return cfg
}

// Load reads YAML config from path over the defaults, then applies .env and QUIZ_* overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("process env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the enumerated settings.
func (c Config) Validate() error {
	switch c.Transport.Kind {
	case "ws", "nats":
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	switch c.Store.Backend {
	case "memory", "bolt", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
