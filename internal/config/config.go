package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file
const (
	EnvDatabaseURL = "PORTAL_DATABASE_URL"
	EnvJWTSecret   = "PORTAL_JWT_SECRET"
)

// Realtime drivers
const (
	DriverPostgres = "postgres"
	DriverNATS     = "nats"
	DriverMemory   = "memory"
)

// ChatConfig bounds chat reads and writes
type ChatConfig struct {
	HistoryLimit     int `yaml:"historyLimit" validate:"omitempty,min=1,max=500"`
	MaxMessageLength int `yaml:"maxMessageLength" validate:"omitempty,min=1,max=1000"`
}

// RealtimeConfig selects the push feed for chat messages
type RealtimeConfig struct {
	Driver  string `yaml:"driver" validate:"omitempty,oneof=postgres nats memory"`
	NATSURL string `yaml:"natsURL" validate:"required_if=Driver nats,omitempty,url"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Config represents the application configuration
type Config struct {
	DatabaseURL      string         `yaml:"databaseURL" validate:"required"`
	JWTSecret        string         `yaml:"jwtSecret" validate:"required,min=16"`
	AdminRole        string         `yaml:"adminRole"`
	Timezone         string         `yaml:"timezone"`
	LoadWindowMonths int            `yaml:"loadWindowMonths" validate:"omitempty,min=1,max=12"`
	RequestTimeout   time.Duration  `yaml:"requestTimeout"`
	Chat             ChatConfig     `yaml:"chat"`
	Realtime         RealtimeConfig `yaml:"realtime"`
	HTTP             HTTPConfig     `yaml:"http"`
	MetricsAddr      string         `yaml:"metricsAddr,omitempty"`
	GmailSender      string         `yaml:"gmailSender,omitempty" validate:"omitempty,email"`
	RosterSheetID    string         `yaml:"rosterSheetID,omitempty"`
	ICSDomain        string         `yaml:"icsDomain,omitempty" validate:"omitempty,hostname"`

	location *time.Location
}

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
}

// LoadWithEnv loads portal_config.<env>.yaml from the current directory or
// the home directory
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findFile(configFileName(env))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path.
// Secrets set in the environment win over the file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.JWTSecret = v
	}

	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.AdminRole == "" {
		c.AdminRole = "admin"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Vancouver"
	}
	if c.LoadWindowMonths == 0 {
		c.LoadWindowMonths = 2
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = 1000
	}
	if c.Realtime.Driver == "" {
		c.Realtime.Driver = DriverPostgres
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// Validate validates the configuration struct and resolves the timezone
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must not be negative")
	}

	return nil
}

// Location returns the club's timezone. Date keys and recurrence are computed
// on this calendar.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func configFileName(env string) string {
	if env == "" {
		return "portal_config.yaml"
	}
	return "portal_config." + env + ".yaml"
}

// findFile looks for name in the current directory, then the home directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
