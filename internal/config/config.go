// Package config loads and validates the service configuration. Values come
// from an optional YAML file (with ${VAR} expansion) overlaid by environment
// variables; environment always wins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the registration backend.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Model        ModelConfig        `yaml:"model"`
	Payments     PaymentsConfig     `yaml:"payments"`
	SMS          SMSConfig          `yaml:"sms"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store"`
	AddressLookup AddressLookupConfig `yaml:"address_lookup"`
	Records      RecordsConfig      `yaml:"records"`
	Season       SeasonConfig       `yaml:"season"`
	Photo        PhotoConfig        `yaml:"photo"`
	Pricing      PricingConfig      `yaml:"pricing"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Logging      LoggingConfig      `yaml:"logging"`
	DevMode      bool               `yaml:"dev_mode"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ModelConfig struct {
	// Provider selects the model adapter: "anthropic" or "openai".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// TurnTimeout bounds a whole dispatcher turn.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	// CallTimeout bounds a single model round-trip attempt.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type PaymentsConfig struct {
	AccessToken   string `yaml:"access_token"`
	WebhookSecret string `yaml:"webhook_secret"`
	Environment   string `yaml:"environment"` // sandbox | live
	BaseURL       string `yaml:"base_url"`
}

type SMSConfig struct {
	APIKey string `yaml:"api_key"`
	Sender string `yaml:"sender"`
	BaseURL string `yaml:"base_url"`
}

type ObjectStoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type AddressLookupConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type RecordsConfig struct {
	// DatabaseURL is the Postgres connection string for the record table.
	DatabaseURL string `yaml:"database_url"`
}

type SeasonConfig struct {
	// Current is the season code registration codes must carry.
	Current string `yaml:"current"`
	// CutoffDate is the first date collections may start (YYYY-MM-DD).
	CutoffDate string `yaml:"cutoff_date"`
	// PostcodeAreas restricts manually typed addresses to the club's
	// catchment. Empty allows any UK address.
	PostcodeAreas []string `yaml:"postcode_areas"`
}

type PhotoConfig struct {
	// Async enables the background upload pipeline.
	Async   bool `yaml:"async"`
	Workers int  `yaml:"workers"`
}

type PricingConfig struct {
	MonthlyPounds    float64 `yaml:"monthly_pounds"`
	SigningFeePounds float64 `yaml:"signing_fee_pounds"`
}

type SessionsConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	MaxHistory  int           `yaml:"max_history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StartYear returns the season's anchor year, taken from the cutoff date. It
// drives the 31-August age-group calculation.
func (s SeasonConfig) StartYear() int {
	t, err := time.Parse("2006-01-02", s.CutoffDate)
	if err != nil {
		return time.Now().Year()
	}
	return t.Year()
}

// Default returns the built-in defaults applied before file and env overlay.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Model: ModelConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			TurnTimeout: 120 * time.Second,
			CallTimeout: 30 * time.Second,
		},
		Payments: PaymentsConfig{Environment: "sandbox"},
		Season:   SeasonConfig{Current: "2526", CutoffDate: "2025-08-28"},
		Photo:    PhotoConfig{Workers: 4},
		Pricing:  PricingConfig{MonthlyPounds: 27.50, SigningFeePounds: 30.00},
		Sessions: SessionsConfig{IdleTimeout: 24 * time.Hour, MaxHistory: 40},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Model.Provider, "MODEL_PROVIDER")
	setString(&c.Model.APIKey, "MODEL_API_KEY")
	setString(&c.Model.Model, "MODEL_ID")
	setString(&c.Model.BaseURL, "MODEL_BASE_URL")

	setString(&c.Payments.AccessToken, "PAYMENT_ACCESS_TOKEN")
	setString(&c.Payments.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")
	setString(&c.Payments.Environment, "PAYMENT_ENVIRONMENT")
	setString(&c.Payments.BaseURL, "PAYMENT_BASE_URL")

	setString(&c.SMS.APIKey, "SMS_API_KEY")
	setString(&c.SMS.Sender, "SMS_SENDER")
	setString(&c.SMS.BaseURL, "SMS_BASE_URL")

	setString(&c.ObjectStore.Bucket, "OBJECT_STORE_BUCKET")
	setString(&c.ObjectStore.Region, "OBJECT_STORE_REGION")
	setString(&c.ObjectStore.Endpoint, "OBJECT_STORE_ENDPOINT")
	setString(&c.ObjectStore.AccessKeyID, "OBJECT_STORE_ACCESS_KEY_ID")
	setString(&c.ObjectStore.SecretAccessKey, "OBJECT_STORE_SECRET_ACCESS_KEY")

	setString(&c.AddressLookup.APIKey, "ADDRESS_LOOKUP_API_KEY")
	setString(&c.AddressLookup.BaseURL, "ADDRESS_LOOKUP_BASE_URL")

	setString(&c.Records.DatabaseURL, "RECORDS_DATABASE_URL")

	setString(&c.Season.Current, "CURRENT_SEASON")
	setString(&c.Season.CutoffDate, "SEASON_CUTOFF_DATE")

	setBool(&c.Photo.Async, "USE_ASYNC_PHOTO")
	setInt(&c.Photo.Workers, "PHOTO_WORKERS")
	setBool(&c.DevMode, "DEV_MODE")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	setInt(&c.Server.Port, "PORT")
	setString(&c.Server.Host, "HOST")
}

// Validate returns an error describing the first fatal misconfiguration. The
// process must exit with code 1 when this fails at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("model api key is required")
	}
	if c.Payments.AccessToken == "" {
		return fmt.Errorf("payment access token is required")
	}
	if c.Payments.WebhookSecret == "" && !c.DevMode {
		return fmt.Errorf("payment webhook secret is required outside dev mode")
	}
	if c.ObjectStore.Bucket == "" {
		return fmt.Errorf("object store bucket is required")
	}
	if c.Season.Current == "" {
		return fmt.Errorf("current season is required")
	}
	if _, err := time.Parse("2006-01-02", c.Season.CutoffDate); err != nil {
		return fmt.Errorf("season cutoff date: %w", err)
	}
	if c.Photo.Workers <= 0 {
		return fmt.Errorf("photo workers must be positive")
	}
	if c.Pricing.MonthlyPounds <= 0 || c.Pricing.SigningFeePounds < 0 {
		return fmt.Errorf("pricing amounts are invalid")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err == nil {
			*dst = parsed
		}
	}
}
