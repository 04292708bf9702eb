// Package config loads the reservation bot configuration: the reusable core
// settings plus database, Redis, conversation state and store (business) rules.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	coreconfig "github.com/m3rciful/reservebot/core/config"
	coredatabase "github.com/m3rciful/reservebot/core/database"
)

const (
	// BackendPostgres keeps conversation state in the user_states table.
	BackendPostgres = "postgres"
	// BackendRedis keeps conversation state in Redis keys with a TTL.
	BackendRedis = "redis"
	// BackendMemory keeps conversation state in process memory (development only).
	BackendMemory = "memory"
)

// RedisConfig holds connection settings for the Redis state backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB" validate:"min=0,max=15"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// StateConfig controls where in-progress conversations live and how long they survive.
type StateConfig struct {
	Backend       string        `yaml:"backend" envconfig:"STATE_BACKEND" validate:"oneof=postgres redis memory"`
	TTL           time.Duration `yaml:"ttl" envconfig:"STATE_TTL" validate:"min=0"`
	SweepSchedule string        `yaml:"sweep_schedule" envconfig:"STATE_SWEEP_SCHEDULE"`
}

// StoreConfig is the raw, file-level form of the restaurant's booking rules.
type StoreConfig struct {
	OpenTime        string   `yaml:"open_time" envconfig:"STORE_OPEN_TIME" validate:"required,clock"`
	CloseTime       string   `yaml:"close_time" envconfig:"STORE_CLOSE_TIME" validate:"required,clock"`
	IntervalMinutes int      `yaml:"interval_minutes" envconfig:"STORE_INTERVAL_MINUTES" validate:"min=1,max=720"`
	MaxPerSlot      int      `yaml:"max_per_slot" envconfig:"STORE_MAX_PER_SLOT" validate:"min=1"`
	CapacityScope   string   `yaml:"capacity_scope" envconfig:"STORE_CAPACITY_SCOPE" validate:"oneof=day slot"`
	LeadMinutes     int      `yaml:"lead_minutes" envconfig:"STORE_LEAD_MINUTES" validate:"min=0"`
	MinPeople       int      `yaml:"min_people" envconfig:"STORE_MIN_PEOPLE" validate:"min=1,max=10"`
	MaxPeople       int      `yaml:"max_people" envconfig:"STORE_MAX_PEOPLE" validate:"max=10,gtefield=MinPeople"`
	Timezone        string   `yaml:"timezone" envconfig:"STORE_TIMEZONE" validate:"required"`
	Keywords        []string `yaml:"keywords" envconfig:"STORE_KEYWORDS" validate:"min=1,dive,required"`
	AtomicInsert    bool     `yaml:"atomic_insert" envconfig:"STORE_ATOMIC_INSERT"`
}

// Config is the full configuration of the reservation bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Redis    RedisConfig         `yaml:"redis"`
	State    StateConfig         `yaml:"state"`
	Store    StoreConfig         `yaml:"store"`
}

// CoreConfig exposes the embedded core configuration to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Default returns a configuration pre-filled with the values used when the file omits them.
func Default() *Config {
	return &Config{
		Database: coredatabase.Config{
			Host:           "localhost",
			Port:           "5432",
			SSLMode:        "disable",
			MaxConnections: 10,
			MigrationsDir:  "migrations",
		},
		Redis: RedisConfig{KeyPrefix: "reservebot:state"},
		State: StateConfig{
			Backend:       BackendPostgres,
			TTL:           24 * time.Hour,
			SweepSchedule: "@every 1h",
		},
		Store: StoreConfig{
			OpenTime:        "10:00",
			CloseTime:       "22:00",
			IntervalMinutes: 30,
			MaxPerSlot:      2,
			CapacityScope:   string(ScopeDay),
			LeadMinutes:     30,
			MinPeople:       1,
			MaxPeople:       10,
			Timezone:        "Asia/Tokyo",
			Keywords:        []string{"予約", "reserve"},
			AtomicInsert:    true,
		},
	}
}

// Load reads the YAML file at path, overlays environment variables and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := coreconfig.Decode(path, cfg); err != nil {
		return nil, err
	}
	if err := Normalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var clockRe = regexp.MustCompile(`^([01]\d|2[0-4]):[0-5]\d$`)

func newValidator() *validator.Validate {
	v := validator.New()
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return clockRe.MatchString(fl.Field().String())
	})
	return v
}

// Normalize validates cfg and fills derived defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.State.Backend = strings.ToLower(strings.TrimSpace(cfg.State.Backend))
	cfg.Store.CapacityScope = strings.ToLower(strings.TrimSpace(cfg.Store.CapacityScope))
	if err := newValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.State.Backend == BackendRedis && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr is required when state.backend is 'redis'")
	}
	if _, err := cfg.Store.Build(); err != nil {
		return err
	}
	return nil
}
