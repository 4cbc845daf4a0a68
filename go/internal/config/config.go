package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/cardroom/go/internal/game"
)

// Config is everything the server binary reads at startup.
type Config struct {
	Port           string      `yaml:"port"`
	LogLevel       string      `yaml:"log_level"`
	DeckDir        string      `yaml:"deck_dir"`
	AllowedOrigins []string    `yaml:"allowed_origins"`
	Redis          Redis       `yaml:"redis"`
	NATS           NATS        `yaml:"nats"`
	Database       Database    `yaml:"database"`
	Archive        bool        `yaml:"archive_enabled"`
	Game           game.Config `yaml:"game"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATS configures event publishing. An empty URL disables it.
type NATS struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"`
}

// Database holds Postgres connection settings.
type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

func Default() Config {
	return Config{
		Port:           "8080",
		LogLevel:       "info",
		DeckDir:        "decks",
		AllowedOrigins: []string{"*"},
		Redis:          Redis{Addr: "localhost:6379"},
		NATS:           NATS{Stream: "CARDROOM_EVENTS"},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "cardroom",
			SSLMode:  "disable",
		},
		Game: game.DefaultConfig(),
	}
}

// Load reads .env, then the YAML file at path if it exists, then
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	env := envReader{lookup: lookup}
	env.stringVar("PORT", &c.Port)
	env.stringVar("LOG_LEVEL", &c.LogLevel)
	env.stringVar("DECK_DIR", &c.DeckDir)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.AllowedOrigins = splitList(v)
	}
	env.stringVar("REDIS_ADDR", &c.Redis.Addr)
	env.stringVar("REDIS_PASSWORD", &c.Redis.Password)
	env.intVar("REDIS_DB", &c.Redis.DB)
	env.stringVar("NATS_URL", &c.NATS.URL)
	env.stringVar("NATS_STREAM", &c.NATS.Stream)
	env.stringVar("DB_HOST", &c.Database.Host)
	env.intVar("DB_PORT", &c.Database.Port)
	env.stringVar("DB_USER", &c.Database.User)
	env.stringVar("DB_PASSWORD", &c.Database.Password)
	env.stringVar("DB_NAME", &c.Database.Name)
	env.stringVar("DB_SSLMODE", &c.Database.SSLMode)
	env.boolVar("ARCHIVE_ENABLED", &c.Archive)
	env.durationVar("NOMINATION_TIMEOUT", &c.Game.NominationTimeout)
	env.durationVar("ELECTION_TIMEOUT", &c.Game.ElectionTimeout)
	env.intVar("QUORUM", &c.Game.Quorum)
	env.intVar("ROUND_POINTS", &c.Game.RoundPoints)
	return env.err
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Redis.Addr == "" {
		return errors.New("redis addr is required")
	}
	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	return nil
}

// Level is the zerolog level named by LogLevel.
func (c Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) stringVar(key string, dst *string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *envReader) boolVar(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *envReader) durationVar(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
